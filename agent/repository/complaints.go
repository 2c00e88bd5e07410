package repository

import (
	"context"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	errx "github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

// Complaints is the append-only escalation record.
type Complaints struct {
	db bun.IDB
}

func NewComplaints(db bun.IDB) *Complaints {
	return &Complaints{db: db}
}

func (r *Complaints) InsertComplaint(ctx context.Context, c contractx.Complaint) (int64, error) {
	m := complaintModel{
		StudentID:     c.StudentID,
		Name:          c.Name,
		Phone:         c.Phone,
		Email:         c.Email,
		ChatHistories: c.ChatHistories,
		State:         c.StateJSON,
	}
	if _, err := r.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		logx.Error().Err(err).Int64("student_id", c.StudentID).Msg("failed to insert complaint")
		return 0, errx.WrapDB(err)
	}
	logx.Info().Int64("complaint_id", m.ID).Msg("complaint saved")
	return m.ID, nil
}

var _ contractx.ComplaintStore = (*Complaints)(nil)
