package core

import (
	"github.com/Deepreo/kronos/cron"
	"github.com/Deepreo/kronos/errors"
)

var (
	ErrInvalidCronSyntax    = cron.ErrInvalidSyntax
	ErrDuplicateJobName     = errors.ConflictError(errors.New("job name already registered")).WithCode("DUPLICATE_JOB_NAME")
	ErrNegativeDelay        = errors.ValidationError(errors.New("start delay must not be negative")).WithCode("NEGATIVE_DELAY")
	ErrJobNotFound          = errors.NotFoundError(errors.New("job not found")).WithCode("JOB_NOT_FOUND")
	ErrJobExecution         = errors.AppError(errors.New("job execution failed")).WithCode("JOB_EXECUTION_FAILED")
	ErrInterruptDelivery    = errors.AppError(errors.New("interrupt could not be delivered")).WithCode("INTERRUPT_DELIVERY_FAILED")
	ErrSchedulerStopped     = errors.AppError(errors.New("scheduler is stopped")).WithCode("SCHEDULER_STOPPED")
	ErrShutdownTimeout      = errors.AppError(errors.New("jobs still running after shutdown timeout")).WithCode("SHUTDOWN_TIMEOUT")
	ErrInvalidMisfirePolicy = errors.ValidationError(errors.New("invalid misfire policy")).WithCode("INVALID_MISFIRE_POLICY")
	ErrInvalidJobDescriptor = errors.ValidationError(errors.New("invalid job descriptor")).WithCode("INVALID_JOB_DESCRIPTOR")
)
