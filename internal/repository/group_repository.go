package repository

import (
	"time"

	"tutorhub_backend/internal/model"

	"gorm.io/gorm"
)

type GroupRepository struct {
	DB *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{DB: db}
}

func (r *GroupRepository) Create(group *model.Group) error {
	return r.DB.Create(group).Error
}

func (r *GroupRepository) FindByID(id uint) (*model.Group, error) {
	var group model.Group
	err := r.DB.First(&group, id).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *GroupRepository) AddMember(groupID, studentID uint) error {
	member := &model.GroupMember{
		GroupID:   groupID,
		StudentID: studentID,
		JoinedAt:  time.Now(),
	}
	return r.DB.Create(member).Error
}

func (r *GroupRepository) RemoveMember(groupID, studentID uint) error {
	return r.DB.Where("group_id = ? AND student_id = ?", groupID, studentID).
		Delete(&model.GroupMember{}).Error
}

// IsMember 判断学生是否注册在班级内
func (r *GroupRepository) IsMember(groupID, studentID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.GroupMember{}).
		Where("group_id = ? AND student_id = ?", groupID, studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *GroupRepository) ListForStudent(studentID uint) ([]model.Group, error) {
	var groups []model.Group
	err := r.DB.Table("groups g").
		Select("g.*").
		Joins("JOIN group_members m ON m.group_id = g.id").
		Where("m.student_id = ? AND g.deleted_at IS NULL AND m.deleted_at IS NULL", studentID).
		Scan(&groups).Error
	return groups, err
}
