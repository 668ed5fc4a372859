package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/fuegoaustral/ticketera-sub000/pkg/gctasks"
	"github.com/sirupsen/logrus"
)

const InternalTokenHeader = "X-Internal-Token"

// Rescheduler enqueues the next run of a periodic job as a Cloud Task that
// calls one of the internal job endpoints.
type Rescheduler interface {
	Next(ctx context.Context, job string, path string, body []byte) error
}

type cloudTasksRescheduler struct {
	logger        *logrus.Logger
	tasks         gctasks.Client
	queueID       string
	baseURL       string
	internalToken string
	interval      time.Duration
	now           func() time.Time
}

type RescheduleProperty struct {
	Logger        *logrus.Logger
	Tasks         gctasks.Client
	QueueID       string
	BaseURL       string
	InternalToken string
	Interval      time.Duration
}

func NewCloudTasksRescheduler(props RescheduleProperty) Rescheduler {
	if props.Tasks == nil || props.Interval <= 0 {
		return Disabled()
	}

	return &cloudTasksRescheduler{
		logger:        props.Logger,
		tasks:         props.Tasks,
		queueID:       props.QueueID,
		baseURL:       props.BaseURL,
		internalToken: props.InternalToken,
		interval:      props.Interval,
		now:           time.Now,
	}
}

// TaskName is stable within one interval bucket, so overlapping runs
// enqueue the follow-up only once.
func TaskName(job string, at time.Time, interval time.Duration) string {
	name := strings.NewReplacer(":", "-", "/", "-", " ", "-").Replace(job)
	return fmt.Sprintf("%s-%d", name, at.Add(interval).Truncate(interval).Unix())
}

// Next implements Rescheduler.
func (r *cloudTasksRescheduler) Next(ctx context.Context, job string, path string, body []byte) error {
	req := gctasks.Request{
		Name:   TaskName(job, r.now(), r.interval),
		URL:    r.baseURL + path,
		Method: cloudtaskspb.HttpMethod_POST,
		Header: map[string]string{
			"Content-Type":      "application/json",
			InternalTokenHeader: r.internalToken,
		},
		Body: body,
	}

	if err := r.tasks.DeferCreateTaskInDuration(ctx, r.queueID, req, r.interval); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("job", job).Error("failed to reschedule job")
		return err
	}

	return nil
}

type disabled struct{}

func (disabled) Next(context.Context, string, string, []byte) error { return nil }

// Disabled never reschedules; used when Cloud Tasks is not configured.
func Disabled() Rescheduler {
	return disabled{}
}
