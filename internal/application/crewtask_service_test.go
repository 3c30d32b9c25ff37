package application

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cit-platform/crewtask-service/internal/domain"
	"github.com/cit-platform/crewtask-service/pkg/errors"
	"github.com/cit-platform/crewtask-service/pkg/logging"
)

// Mocks

type mockTaskRepo struct {
	findByTaskIDFn    func(ctx context.Context, taskID string) (*domain.CrewTask, error)
	findAllFn         func(ctx context.Context, filter domain.TaskFilter, pagination domain.Pagination) ([]*domain.CrewTask, error)
	countFn           func(ctx context.Context, filter domain.TaskFilter) (int64, error)
	saveFn            func(ctx context.Context, task *domain.CrewTask) error
	applyTransitionFn func(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error)
}

func (m *mockTaskRepo) FindByTaskID(ctx context.Context, taskID string) (*domain.CrewTask, error) {
	return m.findByTaskIDFn(ctx, taskID)
}

func (m *mockTaskRepo) FindAll(ctx context.Context, filter domain.TaskFilter, pagination domain.Pagination) ([]*domain.CrewTask, error) {
	return m.findAllFn(ctx, filter, pagination)
}

func (m *mockTaskRepo) Count(ctx context.Context, filter domain.TaskFilter) (int64, error) {
	return m.countFn(ctx, filter)
}

func (m *mockTaskRepo) Save(ctx context.Context, task *domain.CrewTask) error {
	return m.saveFn(ctx, task)
}

func (m *mockTaskRepo) ApplyTransition(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error) {
	return m.applyTransitionFn(ctx, task, expectedScreen, activity)
}

type mockActivityRepo struct {
	saveFn         func(ctx context.Context, activity *domain.TaskActivity) error
	findByTaskIDFn func(ctx context.Context, taskID string) ([]*domain.TaskActivity, error)
}

func (m *mockActivityRepo) Save(ctx context.Context, activity *domain.TaskActivity) error {
	return m.saveFn(ctx, activity)
}

func (m *mockActivityRepo) FindByTaskID(ctx context.Context, taskID string) ([]*domain.TaskActivity, error) {
	return m.findByTaskIDFn(ctx, taskID)
}

type mockCrewDirectory struct {
	resolveFn func(ctx context.Context, badgeID string) (int64, error)
}

func (m *mockCrewDirectory) ResolveUserIDByBadge(ctx context.Context, badgeID string) (int64, error) {
	return m.resolveFn(ctx, badgeID)
}

// Fixtures

const (
	testBadgeID = "3f1a7c2e-9b44-4d8a-8f20-5c6d1e0a9b33"
	testUserID  = int64(42)
)

func testLogger() *logging.Logger {
	config := logging.DefaultConfig("test")
	config.Output = io.Discard
	return logging.New(config)
}

func testActor() Actor {
	return Actor{ClaimUserID: testUserID, BadgeID: testBadgeID}
}

func testDirectory(userID int64) *mockCrewDirectory {
	return &mockCrewDirectory{
		resolveFn: func(ctx context.Context, badgeID string) (int64, error) {
			return userID, nil
		},
	}
}

func bssTaskAt(t *testing.T, screen domain.Screen) *domain.CrewTask {
	t.Helper()
	task, err := domain.NewCrewTask("TASK-001", "ORD-001", domain.FamilyBSS, testUserID)
	require.NoError(t, err)
	task.Screen = screen
	return task
}

func newTestService(taskRepo *mockTaskRepo, activityRepo *mockActivityRepo, crewDir *mockCrewDirectory) *CrewTaskService {
	return NewCrewTaskService(taskRepo, activityRepo, crewDir, testLogger(), nil)
}

func transitionCmd(taskID string, requested domain.Screen) TransitionCommand {
	return TransitionCommand{
		TaskID:          taskID,
		RequestedScreen: string(requested),
		Time:            time.Now().UTC(),
		Location:        LocationInput{Latitude: "41.0082", Longitude: "28.9784"},
	}
}

// TestAuthorization tests the dual identity binding
func TestAuthorization(t *testing.T) {
	t.Run("mismatched claim and badge resolution is unauthorized", func(t *testing.T) {
		crewDir := testDirectory(9) // badge resolves to a different user than the claim
		service := newTestService(&mockTaskRepo{}, &mockActivityRepo{}, crewDir)

		actor := Actor{ClaimUserID: 7, BadgeID: testBadgeID}
		_, err := service.Start(context.Background(), actor, transitionCmd("TASK-001", domain.ScreenBSSStart))

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeUnauthorized, appErr.Code)
		assert.Equal(t, 401, appErr.HTTPStatus)
	})

	t.Run("unknown badge is unauthorized", func(t *testing.T) {
		crewDir := &mockCrewDirectory{
			resolveFn: func(ctx context.Context, badgeID string) (int64, error) {
				return 0, domain.ErrCrewMemberNotFound
			},
		}
		service := newTestService(&mockTaskRepo{}, &mockActivityRepo{}, crewDir)

		_, err := service.Start(context.Background(), testActor(), transitionCmd("TASK-001", domain.ScreenBSSStart))

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeUnauthorized, appErr.Code)
	})

	t.Run("acting on another crew's task is forbidden", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				task := bssTaskAt(t, "")
				task.CrewCommanderID = 99
				return task, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		_, err := service.Start(context.Background(), testActor(), transitionCmd("TASK-001", domain.ScreenBSSStart))

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeForbidden, appErr.Code)
		assert.Equal(t, 403, appErr.HTTPStatus)
	})
}

// TestStartTransition tests the shared transition pipeline
func TestStartTransition(t *testing.T) {
	t.Run("applies the transition conditionally on the prior screen", func(t *testing.T) {
		var capturedExpected domain.Screen
		var capturedActivity *domain.TaskActivity

		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return bssTaskAt(t, domain.ScreenBSSStart), nil
			},
			applyTransitionFn: func(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error) {
				capturedExpected = expectedScreen
				capturedActivity = activity
				return true, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		result, err := service.Arrived(context.Background(), testActor(), transitionCmd("TASK-001", domain.ScreenBSSArrived))
		require.NoError(t, err)

		assert.Equal(t, domain.ScreenBSSStart, capturedExpected)
		require.NotNil(t, capturedActivity)
		assert.Equal(t, domain.ActivityArrived, capturedActivity.Type)
		assert.Equal(t, testUserID, capturedActivity.ActorUserID)

		assert.Equal(t, "TASK-001", result.TaskID)
		assert.Equal(t, string(domain.ScreenBSSArrived), result.Screen)
		assert.Equal(t, "Arrived", result.Status)
		assert.False(t, result.Partial)
	})

	t.Run("task not found", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return nil, domain.ErrTaskNotFound
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		_, err := service.Start(context.Background(), testActor(), transitionCmd("TASK-404", domain.ScreenBSSStart))

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeNotFound, appErr.Code)
	})

	t.Run("stale screen rejected as invalid transition", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return bssTaskAt(t, domain.ScreenBSSArrived), nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		// Client replays a stale "Loaded" submission from two stages ahead.
		_, err := service.LoadParcels(context.Background(), testActor(), LoadParcelsCommand{
			TransitionCommand: transitionCmd("TASK-001", domain.ScreenBSSLoaded),
			PickupReceipt:     "RCPT-1",
			ParcelQRs:         []string{"QR-001"},
		})

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeInvalidTransition, appErr.Code)
		assert.Equal(t, string(domain.ScreenBSSSaveAmount), appErr.Details["expectedScreen"])
		assert.Equal(t, string(domain.ScreenBSSLoaded), appErr.Details["requestedScreen"])
	})

	t.Run("terminal task rejected", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				task := bssTaskAt(t, domain.ScreenFailed)
				return task, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		_, err := service.Start(context.Background(), testActor(), transitionCmd("TASK-001", domain.ScreenBSSStart))

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeTerminalState, appErr.Code)
	})

	t.Run("conditional update losing the race is a conflict", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return bssTaskAt(t, ""), nil
			},
			applyTransitionFn: func(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error) {
				return false, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		_, err := service.Start(context.Background(), testActor(), transitionCmd("TASK-001", domain.ScreenBSSStart))

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeTransitionConflict, appErr.Code)
		assert.Equal(t, 409, appErr.HTTPStatus)
	})
}

// TestUnloadParcelsService tests reconciliation surfaced through the service
func TestUnloadParcelsService(t *testing.T) {
	taskRepo := &mockTaskRepo{
		findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
			task := bssTaskAt(t, domain.ScreenBSSArrivedDelivery)
			task.LoadedParcels = []string{"QR-001", "QR-002"}
			return task, nil
		},
	}
	service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

	_, err := service.UnloadParcels(context.Background(), testActor(), UnloadParcelsCommand{
		TransitionCommand: transitionCmd("TASK-001", domain.ScreenBSSUnloaded),
		DeliveryReceipt:   "DLV-5",
		ParcelQRs:         []string{"QR-777", "QR-001", "QR-888"},
	})

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnmatchedParcels, appErr.Code)
	assert.Equal(t, "QR-777,QR-888", appErr.Details["unmatchedParcels"])
}

// TestCompleteService tests full and partial completion through the service
func TestCompleteService(t *testing.T) {
	t.Run("full completion", func(t *testing.T) {
		var capturedActivity *domain.TaskActivity
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				task := bssTaskAt(t, domain.ScreenBSSUnloaded)
				task.LoadedParcels = []string{"QR-001"}
				task.UnloadedParcels = []string{"QR-001"}
				return task, nil
			},
			applyTransitionFn: func(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error) {
				capturedActivity = activity
				return true, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		result, err := service.Complete(context.Background(), testActor(), CompleteTaskCommand{
			TransitionCommand: transitionCmd("TASK-001", domain.ScreenBSSCompleted),
		})
		require.NoError(t, err)

		assert.False(t, result.Partial)
		assert.Equal(t, string(domain.ScreenCompleted), result.Screen)
		assert.Equal(t, domain.ActivityCompleted, capturedActivity.Type)
	})

	t.Run("count mismatch downgrades to partial", func(t *testing.T) {
		var capturedActivity *domain.TaskActivity
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				task := bssTaskAt(t, domain.ScreenBSSUnloaded)
				task.LoadedParcels = []string{"QR-001", "QR-002", "QR-003"}
				task.UnloadedParcels = []string{"QR-001", "QR-002"}
				return task, nil
			},
			applyTransitionFn: func(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error) {
				capturedActivity = activity
				return true, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		result, err := service.Complete(context.Background(), testActor(), CompleteTaskCommand{
			TransitionCommand: transitionCmd("TASK-001", domain.ScreenBSSCompleted),
		})
		require.NoError(t, err)

		assert.True(t, result.Partial)
		assert.Equal(t, string(domain.ScreenBSSUnloaded), result.Screen)
		assert.Equal(t, "PartialCompleted", result.Status)
		assert.Equal(t, domain.ActivityPartialCompleted, capturedActivity.Type)
	})
}

// TestFailService tests the failed transition through the service
func TestFailService(t *testing.T) {
	t.Run("missing reason is a validation error", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return bssTaskAt(t, domain.ScreenBSSArrived), nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		_, err := service.Fail(context.Background(), testActor(), FailTaskCommand{
			TaskID: "TASK-001",
			Time:   time.Now().UTC(),
		})

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeValidationError, appErr.Code)
	})

	t.Run("fails from a mid-workflow stage", func(t *testing.T) {
		var capturedActivity *domain.TaskActivity
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return bssTaskAt(t, domain.ScreenBSSArrivedDelivery), nil
			},
			applyTransitionFn: func(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error) {
				capturedActivity = activity
				return true, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		result, err := service.Fail(context.Background(), testActor(), FailTaskCommand{
			TaskID: "TASK-001",
			Reason: "vehicle breakdown",
			Time:   time.Now().UTC(),
		})
		require.NoError(t, err)

		assert.Equal(t, string(domain.ScreenFailed), result.Screen)
		assert.Equal(t, "Failed", result.Status)
		assert.Equal(t, domain.ActivityFailed, capturedActivity.Type)
		assert.Equal(t, "vehicle breakdown", capturedActivity.FailedReason)
	})
}

// TestQueries tests the read-side operations
func TestQueries(t *testing.T) {
	t.Run("list tasks maps the filter", func(t *testing.T) {
		var capturedFilter domain.TaskFilter
		taskRepo := &mockTaskRepo{
			findAllFn: func(ctx context.Context, filter domain.TaskFilter, pagination domain.Pagination) ([]*domain.CrewTask, error) {
				capturedFilter = filter
				return []*domain.CrewTask{bssTaskAt(t, domain.ScreenBSSStart)}, nil
			},
			countFn: func(ctx context.Context, filter domain.TaskFilter) (int64, error) {
				return 1, nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		family := "BSS"
		crewID := testUserID
		tasks, total, err := service.ListTasks(context.Background(), ListTasksQuery{
			Family:   &family,
			CrewID:   &crewID,
			Page:     1,
			PageSize: 20,
		})
		require.NoError(t, err)

		assert.Len(t, tasks, 1)
		assert.Equal(t, int64(1), total)
		require.NotNil(t, capturedFilter.Family)
		assert.Equal(t, domain.FamilyBSS, *capturedFilter.Family)
		require.NotNil(t, capturedFilter.CrewCommanderID)
		assert.Equal(t, testUserID, *capturedFilter.CrewCommanderID)
	})

	t.Run("activities for an unknown task are not found", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return nil, domain.ErrTaskNotFound
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		_, err := service.GetActivities(context.Background(), "TASK-404")

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeNotFound, appErr.Code)
	})

	t.Run("activities returned oldest first as stored", func(t *testing.T) {
		taskRepo := &mockTaskRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) (*domain.CrewTask, error) {
				return bssTaskAt(t, domain.ScreenBSSArrived), nil
			},
		}
		activityRepo := &mockActivityRepo{
			findByTaskIDFn: func(ctx context.Context, taskID string) ([]*domain.TaskActivity, error) {
				return []*domain.TaskActivity{
					{TaskID: taskID, Type: domain.ActivityStarted},
					{TaskID: taskID, Type: domain.ActivityArrived},
				}, nil
			},
		}
		service := newTestService(taskRepo, activityRepo, testDirectory(testUserID))

		activities, err := service.GetActivities(context.Background(), "TASK-001")
		require.NoError(t, err)
		require.Len(t, activities, 2)
		assert.Equal(t, string(domain.ActivityStarted), activities[0].ActivityType)
		assert.Equal(t, string(domain.ActivityArrived), activities[1].ActivityType)
	})
}

// TestCreateTask tests task assignment
func TestCreateTask(t *testing.T) {
	t.Run("persists a new task at its initial stage", func(t *testing.T) {
		var saved *domain.CrewTask
		taskRepo := &mockTaskRepo{
			saveFn: func(ctx context.Context, task *domain.CrewTask) error {
				saved = task
				return nil
			},
		}
		service := newTestService(taskRepo, &mockActivityRepo{}, testDirectory(testUserID))

		result, err := service.CreateTask(context.Background(), CreateTaskCommand{
			TaskID:          "TASK-010",
			OrderID:         "ORD-010",
			Family:          "ATM",
			CrewCommanderID: testUserID,
		})
		require.NoError(t, err)

		require.NotNil(t, saved)
		assert.Equal(t, domain.FamilyATM, saved.Family)
		assert.Equal(t, domain.Screen(""), saved.Screen)
		assert.Equal(t, "Assigned", result.StatusLabel)
	})

	t.Run("invalid family rejected", func(t *testing.T) {
		service := newTestService(&mockTaskRepo{}, &mockActivityRepo{}, testDirectory(testUserID))

		_, err := service.CreateTask(context.Background(), CreateTaskCommand{
			TaskID:          "TASK-011",
			OrderID:         "ORD-011",
			Family:          "VAN",
			CrewCommanderID: testUserID,
		})

		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeValidationError, appErr.Code)
	})
}
