package gctasks

import (
	"context"
	"fmt"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Client enqueues HTTP tasks that call back into this service.
type Client interface {
	// DeferCreateTaskInDuration schedules request to run after duration.
	// A non-empty request.Name makes the task unique within the queue; a
	// second task with the same name is silently dropped.
	DeferCreateTaskInDuration(ctx context.Context, queueID string, request Request, duration time.Duration) error
	Close() error
}

type Request struct {
	Name   string
	URL    string
	Method cloudtaskspb.HttpMethod
	Header map[string]string
	Body   []byte
}

type tasksClientImpl struct {
	projectID  string
	locationID string
	logger     *logrus.Logger
	client     *cloudtasks.Client
}

func NewGCTasks(logger *logrus.Logger, projectID, locationID string, credsJson []byte) Client {
	c, err := cloudtasks.NewClient(context.Background(), option.WithCredentialsJSON(credsJson))
	if err != nil {
		logger.WithField("object", "gctasks").Error(err)
		return nil
	}

	return &tasksClientImpl{
		logger:     logger,
		client:     c,
		projectID:  projectID,
		locationID: locationID,
	}
}

func (tc *tasksClientImpl) Close() error {
	return tc.client.Close()
}

func (tc *tasksClientImpl) queuePath(queueID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", tc.projectID, tc.locationID, queueID)
}

func (tc *tasksClientImpl) DeferCreateTaskInDuration(ctx context.Context, queueID string, request Request, duration time.Duration) error {
	queuePath := tc.queuePath(queueID)

	task := &cloudtaskspb.Task{
		MessageType: &cloudtaskspb.Task_HttpRequest{
			HttpRequest: &cloudtaskspb.HttpRequest{
				Url:        request.URL,
				HttpMethod: request.Method,
				Headers:    request.Header,
				Body:       request.Body,
			},
		},
		ScheduleTime: timestamppb.New(time.Now().Add(duration)),
	}
	if request.Name != "" {
		task.Name = fmt.Sprintf("%s/tasks/%s", queuePath, request.Name)
	}

	_, err := tc.client.CreateTask(ctx, &cloudtaskspb.CreateTaskRequest{
		Parent: queuePath,
		Task:   task,
	})
	if err != nil {
		if grpcstatus.Code(err) == codes.AlreadyExists {
			return nil
		}
		tc.logger.WithContext(ctx).WithFields(logrus.Fields{
			"object":    "gctasks",
			"queueId":   queueID,
			"queuePath": queuePath,
		}).Error(err)
		return err
	}

	return nil
}
