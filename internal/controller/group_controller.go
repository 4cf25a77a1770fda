package controller

import (
	"errors"
	"strconv"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/repository"
	"tutorhub_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GroupController 班级管理：建班、加退学生
type GroupController struct {
	GroupRepo *repository.GroupRepository
	UserRepo  *repository.UserRepository
}

func NewGroupController(groupRepo *repository.GroupRepository, userRepo *repository.UserRepository) *GroupController {
	return &GroupController{GroupRepo: groupRepo, UserRepo: userRepo}
}

type createGroupRequest struct {
	Name    string `json:"name" binding:"required"`
	Subject string `json:"subject"`
}

// CreateGroup godoc
// @Summary 创建班级
// @Tags 班级
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body createGroupRequest true "班级信息"
// @Success 201 {object} util.Response{data=model.Group} "创建成功"
// @Router /api/teacher/groups [post]
func (c *GroupController) CreateGroup(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var req createGroupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	group := &model.Group{
		Name:      req.Name,
		Subject:   req.Subject,
		TeacherID: claims.UserID,
	}
	if err := c.GroupRepo.Create(group); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, group)
}

type memberRequest struct {
	StudentID uint `json:"studentId" binding:"required"`
}

// AddMember godoc
// @Summary 添加班级成员
// @Tags 班级
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "班级ID"
// @Param   body body memberRequest true "学生ID"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "班级或学生不存在"
// @Router /api/teacher/groups/{id}/members [post]
func (c *GroupController) AddMember(ctx *gin.Context) {
	groupID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid group id")
		return
	}

	var req memberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if _, err := c.GroupRepo.FindByID(uint(groupID)); err != nil {
		util.NotFound(ctx)
		return
	}
	if _, err := c.UserRepo.FindByID(req.StudentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	if err := c.GroupRepo.AddMember(uint(groupID), req.StudentID); err != nil {
		// 重复添加按幂等处理
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			util.Success(ctx, nil)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, nil)
}

// RemoveMember godoc
// @Summary 移除班级成员
// @Tags 班级
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "班级ID"
// @Param   studentId path int true "学生ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/groups/{id}/members/{studentId} [delete]
func (c *GroupController) RemoveMember(ctx *gin.Context) {
	groupID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid group id")
		return
	}
	studentID, err := strconv.ParseUint(ctx.Param("studentId"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid student id")
		return
	}

	if err := c.GroupRepo.RemoveMember(uint(groupID), uint(studentID)); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, nil)
}

// MyGroups godoc
// @Summary 我所在的班级
// @Tags 班级
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Group} "成功"
// @Router /api/groups [get]
func (c *GroupController) MyGroups(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	groups, err := c.GroupRepo.ListForStudent(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, groups)
}
