package ledger

import (
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

// NewServiceMock returns a Service with a controllable clock.
func NewServiceMock(
	repo Repository,
	courses course.Provider,
	logger core.Logger,
	mailSvc core.EmailService,
	now func() time.Time,
) *Service {
	svc := NewService(repo, courses, logger, mailSvc)
	if now != nil {
		svc.now = now
	}
	return svc
}
