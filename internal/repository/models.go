package repository

import (
	"time"

	"github.com/haiminhvu/mailflow/internal/domain"
)

// JobModel is the persistence model for the jobs table. Seq orders the
// queue: jobs are dispatched strictly by ascending sequence.
type JobModel struct {
	ID                 string              `gorm:"type:uuid;primaryKey"`
	Seq                int64               `gorm:"autoIncrement;uniqueIndex"`
	CustomerCompany    string              `gorm:"type:varchar(255)"`
	CustomerName       string              `gorm:"type:varchar(255)"`
	CustomerEmail      string              `gorm:"type:varchar(255);not null"`
	CustomerDomainTags []string            `gorm:"type:jsonb;serializer:json"`
	Subject            string              `gorm:"type:text;not null"`
	Body               string              `gorm:"type:text;not null"`
	Attachments        []domain.Attachment `gorm:"type:jsonb;serializer:json"`
	Status             domain.JobStatus    `gorm:"type:varchar(20);not null;index"`
	Error              *string             `gorm:"type:text"`
	CreatedAt          time.Time
	SentAt             *time.Time
}

func (JobModel) TableName() string {
	return "jobs"
}

// SendLogModel is the persistence model for the send_logs table.
type SendLogModel struct {
	ID        string            `gorm:"type:uuid;primaryKey"`
	JobID     string            `gorm:"type:uuid;not null"`
	Recipient string            `gorm:"type:varchar(255);not null"`
	Status    domain.SendStatus `gorm:"type:varchar(10);not null"`
	Error     *string           `gorm:"type:text"`
	CreatedAt time.Time         `gorm:"index"`
}

func (SendLogModel) TableName() string {
	return "send_logs"
}

// WorkerStateModel is the persistence model for worker_states. A single
// row with a fixed primary key holds the snapshot.
type WorkerStateModel struct {
	ID           int                `gorm:"primaryKey"`
	IsRunning    bool               `gorm:"not null"`
	Delay        domain.DelayConfig `gorm:"type:jsonb;serializer:json"`
	Total        int                `gorm:"not null;default:0"`
	Sent         int                `gorm:"not null;default:0"`
	Failed       int                `gorm:"not null;default:0"`
	NextSendInMs int                `gorm:"not null;default:0"`
	LastLogLine  string             `gorm:"type:text"`
	UpdatedAt    time.Time
}

func (WorkerStateModel) TableName() string {
	return "worker_states"
}

func jobModelFromDomain(j *domain.Job) *JobModel {
	if j == nil {
		return nil
	}

	return &JobModel{
		ID:                 j.ID,
		Seq:                j.Seq,
		CustomerCompany:    j.Customer.Company,
		CustomerName:       j.Customer.Name,
		CustomerEmail:      j.Customer.Email,
		CustomerDomainTags: j.Customer.DomainTags,
		Subject:            j.Subject,
		Body:               j.Body,
		Attachments:        j.Attachments,
		Status:             j.Status,
		Error:              j.Error,
		CreatedAt:          j.CreatedAt,
		SentAt:             j.SentAt,
	}
}

func jobModelToDomain(m *JobModel) *domain.Job {
	if m == nil {
		return nil
	}

	return &domain.Job{
		ID:  m.ID,
		Seq: m.Seq,
		Customer: domain.Customer{
			Company:    m.CustomerCompany,
			Name:       m.CustomerName,
			Email:      m.CustomerEmail,
			DomainTags: m.CustomerDomainTags,
		},
		Subject:     m.Subject,
		Body:        m.Body,
		Attachments: m.Attachments,
		Status:      m.Status,
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
		SentAt:      m.SentAt,
	}
}

func sendLogModelFromDomain(e *domain.SendLogEntry) *SendLogModel {
	if e == nil {
		return nil
	}

	return &SendLogModel{
		ID:        e.ID,
		JobID:     e.JobID,
		Recipient: e.Recipient,
		Status:    e.Status,
		Error:     e.Error,
		CreatedAt: e.CreatedAt,
	}
}

func sendLogModelToDomain(m *SendLogModel) *domain.SendLogEntry {
	if m == nil {
		return nil
	}

	return &domain.SendLogEntry{
		ID:        m.ID,
		JobID:     m.JobID,
		Recipient: m.Recipient,
		Status:    m.Status,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
	}
}

func workerStateModelFromDomain(s *domain.WorkerState) *WorkerStateModel {
	if s == nil {
		return nil
	}

	return &WorkerStateModel{
		ID:           s.ID,
		IsRunning:    s.IsRunning,
		Delay:        s.Delay,
		Total:        s.Total,
		Sent:         s.Sent,
		Failed:       s.Failed,
		NextSendInMs: s.NextSendInMs,
		LastLogLine:  s.LastLogLine,
		UpdatedAt:    s.UpdatedAt,
	}
}

func workerStateModelToDomain(m *WorkerStateModel) *domain.WorkerState {
	if m == nil {
		return nil
	}

	return &domain.WorkerState{
		ID:           m.ID,
		IsRunning:    m.IsRunning,
		Delay:        m.Delay,
		Total:        m.Total,
		Sent:         m.Sent,
		Failed:       m.Failed,
		NextSendInMs: m.NextSendInMs,
		LastLogLine:  m.LastLogLine,
		UpdatedAt:    m.UpdatedAt,
	}
}
