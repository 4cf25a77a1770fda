package model

import "time"

// Group 辅导班级（分组），测验归属于某个班级
// swagger:model Group
type Group struct {
	BaseModel
	Name      string `gorm:"size:255;not null" json:"name"`
	Subject   string `gorm:"size:100" json:"subject"`
	TeacherID uint   `gorm:"index;type:bigint unsigned" json:"teacherId"`
	IsActive  bool   `gorm:"default:true" json:"isActive"`
}

func (Group) TableName() string {
	return "groups"
}

// GroupMember 学生与班级的注册关系
type GroupMember struct {
	BaseModel
	GroupID   uint      `gorm:"index:idx_group_student,unique;type:bigint unsigned" json:"groupId"`
	StudentID uint      `gorm:"index:idx_group_student,unique;type:bigint unsigned" json:"studentId"`
	JoinedAt  time.Time `json:"joinedAt"`
}

func (GroupMember) TableName() string {
	return "group_members"
}
