package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cit-platform/crewtask-service/internal/domain"
	"github.com/cit-platform/crewtask-service/pkg/errors"
	"github.com/cit-platform/crewtask-service/pkg/logging"
	"github.com/cit-platform/crewtask-service/pkg/metrics"
)

// CrewTaskService handles the task screen-transition workflow use cases
type CrewTaskService struct {
	taskRepo     domain.CrewTaskRepository
	activityRepo domain.ActivityRepository
	crewDir      domain.CrewDirectory
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// NewCrewTaskService creates a new CrewTaskService
func NewCrewTaskService(
	taskRepo domain.CrewTaskRepository,
	activityRepo domain.ActivityRepository,
	crewDir domain.CrewDirectory,
	logger *logging.Logger,
	m *metrics.Metrics,
) *CrewTaskService {
	return &CrewTaskService{
		taskRepo:     taskRepo,
		activityRepo: activityRepo,
		crewDir:      crewDir,
		logger:       logger,
		metrics:      m,
	}
}

// transitionFn mutates a loaded task and returns the activity record for the
// accepted transition plus the partial-completion flag.
type transitionFn func(task *domain.CrewTask) (*domain.TaskActivity, bool, error)

// authorize binds the token identity: the badge UUID is independently
// resolved to a user id which must equal the numeric claim exactly. Every
// failure mode here is Unauthorized, including mismatch.
func (s *CrewTaskService) authorize(ctx context.Context, actor Actor) (int64, error) {
	resolved, err := s.crewDir.ResolveUserIDByBadge(ctx, actor.BadgeID)
	if err != nil {
		if stderrors.Is(err, domain.ErrCrewMemberNotFound) {
			s.denyAuthorization("unknown_badge")
			return 0, errors.ErrUnauthorized("identity could not be resolved")
		}
		s.logger.WithError(err).Error("Failed to resolve badge", "badgeId", actor.BadgeID)
		return 0, errors.ErrInternal("").Wrap(err)
	}

	if resolved != actor.ClaimUserID {
		s.denyAuthorization("identity_mismatch")
		return 0, errors.ErrUnauthorized("identity claims do not match")
	}

	return resolved, nil
}

func (s *CrewTaskService) denyAuthorization(reason string) {
	if s.metrics != nil {
		s.metrics.RecordAuthorizationDenial(reason)
	}
}

// execute runs the shared transition pipeline: authorize, load, mutate,
// conditionally persist. The task's pre-transition screen guards the
// persistence write so that concurrent duplicate submissions cannot both
// apply.
func (s *CrewTaskService) execute(ctx context.Context, actor Actor, taskID string, fn transitionFn) (*TransitionResult, error) {
	start := time.Now()

	userID, err := s.authorize(ctx, actor)
	if err != nil {
		return nil, err
	}

	task, err := s.taskRepo.FindByTaskID(ctx, taskID)
	if err != nil {
		if stderrors.Is(err, domain.ErrTaskNotFound) {
			return nil, errors.ErrNotFoundWithID("task", taskID)
		}
		s.logger.WithError(err).Error("Failed to load task", "taskId", taskID)
		return nil, errors.ErrInternal("").Wrap(err)
	}

	if task.CrewCommanderID != userID {
		s.denyAuthorization("not_task_owner")
		return nil, errors.ErrForbidden("task belongs to a different crew")
	}

	family := string(task.Family)
	expectedScreen := task.Screen

	activity, partial, err := fn(task)
	if err != nil {
		appErr := s.mapTransitionError(taskID, family, err)
		s.recordTransition(family, "rejected", appErr.Code, start)
		return nil, appErr
	}

	applied, err := s.taskRepo.ApplyTransition(ctx, task, expectedScreen, activity)
	if err != nil {
		s.logger.WithError(err).Error("Failed to persist transition",
			"taskId", taskID,
			"activityType", activity.Type,
			"actorUserId", userID)
		s.recordTransition(family, string(activity.Type), "storage_error", start)
		return nil, errors.ErrInternal("").Wrap(err)
	}

	if !applied {
		s.recordTransition(family, string(activity.Type), "conflict", start)
		return nil, errors.ErrTransitionConflict(taskID)
	}

	outcome := "applied"
	if partial {
		outcome = "partial"
		if s.metrics != nil {
			s.metrics.RecordPartialCompletion(family)
		}
	}
	s.recordTransition(family, string(activity.Type), outcome, start)

	s.logger.Audit(ctx, string(activity.Type), taskID, userID, map[string]any{
		"fromScreen": string(expectedScreen),
		"toScreen":   string(task.Screen),
		"partial":    partial,
	})

	return &TransitionResult{
		TaskID:  taskID,
		Status:  task.StatusLabel,
		Screen:  string(task.Screen),
		Time:    activity.RecordedAt,
		Partial: partial,
	}, nil
}

func (s *CrewTaskService) recordTransition(family, activity, outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordTransition(family, activity, outcome, time.Since(start))
	}
}

// mapTransitionError translates domain failures into the API error taxonomy
func (s *CrewTaskService) mapTransitionError(taskID, family string, err error) *errors.AppError {
	var terminal *domain.TerminalStateError
	if stderrors.As(err, &terminal) {
		return errors.ErrTerminalState(taskID, string(terminal.Screen))
	}

	var invalid *domain.InvalidTransitionError
	if stderrors.As(err, &invalid) {
		return errors.ErrInvalidTransition(string(invalid.Expected), string(invalid.Requested))
	}

	var unmatched *domain.UnmatchedParcelsError
	if stderrors.As(err, &unmatched) {
		if s.metrics != nil {
			s.metrics.RecordParcelMismatch(family, "unmatched")
		}
		return errors.ErrUnmatchedParcels(unmatched.Unmatched)
	}

	var dup *domain.DuplicateQRError
	var empty *domain.EmptyQRError
	if stderrors.As(err, &dup) || stderrors.As(err, &empty) {
		if s.metrics != nil {
			s.metrics.RecordParcelMismatch(family, "invalid_batch")
		}
		return errors.ErrValidation(err.Error())
	}

	if stderrors.Is(err, domain.ErrFailedReasonRequired) ||
		stderrors.Is(err, domain.ErrWrongFamily) {
		return errors.ErrValidation(err.Error())
	}

	var lookup *domain.TerminalLookupError
	var unknown *domain.UnknownScreenError
	if stderrors.As(err, &lookup) || stderrors.As(err, &unknown) {
		// Persisted state outside the registry is an internal invariant
		// failure, never a client error.
		s.logger.WithError(err).Error("Screen registry invariant violated", "taskId", taskID)
		return errors.ErrInternal("").Wrap(err)
	}

	return errors.ErrInternal("").Wrap(err)
}

// Start advances a task onto its first stage
func (s *CrewTaskService) Start(ctx context.Context, actor Actor, cmd TransitionCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.Start(domain.Screen(cmd.RequestedScreen)); err != nil {
			return nil, false, err
		}
		return domain.NewTaskActivity(task, domain.ActivityStarted, cmd.Time, cmd.Location.ToGeoPoint()), false, nil
	})
}

// Arrived records arrival at the pickup location
func (s *CrewTaskService) Arrived(ctx context.Context, actor Actor, cmd TransitionCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.MarkArrived(domain.Screen(cmd.RequestedScreen)); err != nil {
			return nil, false, err
		}
		return domain.NewTaskActivity(task, domain.ActivityArrived, cmd.Time, cmd.Location.ToGeoPoint()), false, nil
	})
}

// SaveAmount records the collected amount on a BSS run
func (s *CrewTaskService) SaveAmount(ctx context.Context, actor Actor, cmd SaveAmountCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.RecordAmount(domain.Screen(cmd.RequestedScreen), cmd.Amount, cmd.Denominations); err != nil {
			return nil, false, err
		}
		activity := domain.NewTaskActivity(task, domain.ActivitySaveAmount, cmd.Time, cmd.Location.ToGeoPoint())
		activity.Amount = cmd.Amount
		activity.Denominations = cmd.Denominations
		return activity, false, nil
	})
}

// LoadParcels records a parcel batch loaded onto the vehicle
func (s *CrewTaskService) LoadParcels(ctx context.Context, actor Actor, cmd LoadParcelsCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.LoadParcels(domain.Screen(cmd.RequestedScreen), cmd.PickupReceipt, cmd.ParcelQRs); err != nil {
			return nil, false, err
		}
		activity := domain.NewTaskActivity(task, domain.ActivityLoaded, cmd.Time, cmd.Location.ToGeoPoint())
		activity.PickupReceipt = cmd.PickupReceipt
		activity.ParcelQRs = cmd.ParcelQRs
		return activity, false, nil
	})
}

// TransferParcels records cassettes moved into the destination machine on an
// ATM run; every QR must already be in the loaded set
func (s *CrewTaskService) TransferParcels(ctx context.Context, actor Actor, cmd TransferParcelsCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.TransferParcels(domain.Screen(cmd.RequestedScreen), cmd.ParcelQRs); err != nil {
			return nil, false, err
		}
		activity := domain.NewTaskActivity(task, domain.ActivityLoaded, cmd.Time, cmd.Location.ToGeoPoint())
		activity.ParcelQRs = cmd.ParcelQRs
		return activity, false, nil
	})
}

// ArrivedDelivery records arrival at the delivery location
func (s *CrewTaskService) ArrivedDelivery(ctx context.Context, actor Actor, cmd TransitionCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.MarkArrivedDelivery(domain.Screen(cmd.RequestedScreen)); err != nil {
			return nil, false, err
		}
		return domain.NewTaskActivity(task, domain.ActivityArrivedDelivery, cmd.Time, cmd.Location.ToGeoPoint()), false, nil
	})
}

// UnloadParcels records a parcel batch unloaded at the destination
func (s *CrewTaskService) UnloadParcels(ctx context.Context, actor Actor, cmd UnloadParcelsCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.UnloadParcels(domain.Screen(cmd.RequestedScreen), cmd.DeliveryReceipt, cmd.ParcelQRs); err != nil {
			return nil, false, err
		}
		activity := domain.NewTaskActivity(task, domain.ActivityUnloaded, cmd.Time, cmd.Location.ToGeoPoint())
		activity.DeliveryReceipt = cmd.DeliveryReceipt
		activity.ParcelQRs = cmd.ParcelQRs
		return activity, false, nil
	})
}

// Complete finishes a run. The partial flag in the result distinguishes a
// full completion from a downgraded partial one.
func (s *CrewTaskService) Complete(ctx context.Context, actor Actor, cmd CompleteTaskCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		partial, err := task.Complete(domain.Screen(cmd.RequestedScreen), cmd.ParcelQRs)
		if err != nil {
			return nil, false, err
		}

		activityType := domain.ActivityCompleted
		if partial {
			activityType = domain.ActivityPartialCompleted
		}
		activity := domain.NewTaskActivity(task, activityType, cmd.Time, cmd.Location.ToGeoPoint())
		activity.ParcelQRs = cmd.ParcelQRs
		return activity, partial, nil
	})
}

// Fail moves a task to the failed terminal state
func (s *CrewTaskService) Fail(ctx context.Context, actor Actor, cmd FailTaskCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.Fail(cmd.Reason); err != nil {
			return nil, false, err
		}
		activity := domain.NewTaskActivity(task, domain.ActivityFailed, cmd.Time, cmd.Location.ToGeoPoint())
		activity.FailedReason = cmd.Reason
		return activity, false, nil
	})
}

// Advance moves a generic CIT task onto its next numbered screen
func (s *CrewTaskService) Advance(ctx context.Context, actor Actor, cmd TransitionCommand) (*TransitionResult, error) {
	return s.execute(ctx, actor, cmd.TaskID, func(task *domain.CrewTask) (*domain.TaskActivity, bool, error) {
		if err := task.Advance(domain.Screen(cmd.RequestedScreen)); err != nil {
			return nil, false, err
		}
		return domain.NewTaskActivity(task, domain.ActivityAdvanced, cmd.Time, cmd.Location.ToGeoPoint()), false, nil
	})
}

// CreateTask assigns a new unit of crew work
func (s *CrewTaskService) CreateTask(ctx context.Context, cmd CreateTaskCommand) (*TaskResponse, error) {
	task, err := domain.NewCrewTask(cmd.TaskID, cmd.OrderID, domain.TaskFamily(cmd.Family), cmd.CrewCommanderID)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	if err := s.taskRepo.Save(ctx, task); err != nil {
		s.logger.WithError(err).Error("Failed to create task", "taskId", cmd.TaskID)
		return nil, errors.ErrInternal("").Wrap(err)
	}

	s.logger.Info("Task created", "taskId", task.TaskID, "taskType", task.Family, "crewCommanderId", task.CrewCommanderID)
	return toTaskResponse(task), nil
}

// GetTask retrieves a single task
func (s *CrewTaskService) GetTask(ctx context.Context, taskID string) (*TaskResponse, error) {
	task, err := s.taskRepo.FindByTaskID(ctx, taskID)
	if err != nil {
		if stderrors.Is(err, domain.ErrTaskNotFound) {
			return nil, errors.ErrNotFoundWithID("task", taskID)
		}
		return nil, errors.ErrInternal("").Wrap(err)
	}
	return toTaskResponse(task), nil
}

// ListTasks retrieves a filtered, paginated task list
func (s *CrewTaskService) ListTasks(ctx context.Context, query ListTasksQuery) ([]*TaskResponse, int64, error) {
	filter := domain.TaskFilter{
		StatusLabel:     query.StatusLabel,
		CrewCommanderID: query.CrewID,
	}
	if query.Family != nil {
		family := domain.TaskFamily(*query.Family)
		filter.Family = &family
	}

	pagination := domain.Pagination{Page: query.Page, PageSize: query.PageSize}
	if pagination.Page < 1 {
		pagination = domain.DefaultPagination()
	}

	tasks, err := s.taskRepo.FindAll(ctx, filter, pagination)
	if err != nil {
		return nil, 0, errors.ErrInternal("").Wrap(err)
	}

	total, err := s.taskRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("").Wrap(err)
	}

	responses := make([]*TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, toTaskResponse(task))
	}

	return responses, total, nil
}

// GetActivities retrieves the append-only activity log for a task
func (s *CrewTaskService) GetActivities(ctx context.Context, taskID string) ([]*ActivityResponse, error) {
	if _, err := s.taskRepo.FindByTaskID(ctx, taskID); err != nil {
		if stderrors.Is(err, domain.ErrTaskNotFound) {
			return nil, errors.ErrNotFoundWithID("task", taskID)
		}
		return nil, errors.ErrInternal("").Wrap(err)
	}

	activities, err := s.activityRepo.FindByTaskID(ctx, taskID)
	if err != nil {
		return nil, errors.ErrInternal("").Wrap(err)
	}

	responses := make([]*ActivityResponse, 0, len(activities))
	for _, activity := range activities {
		responses = append(responses, toActivityResponse(activity))
	}

	return responses, nil
}
