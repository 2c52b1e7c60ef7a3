// File: internal/jobs/jobs.go

// Package jobs defines the units of work the dispatcher executes and the
// browser-driven procedures behind them. All selector and URL knowledge for
// the signup, login and password-change flows lives here; the dispatcher only
// sees opaque jobs and results.
package jobs

import (
	"github.com/google/uuid"

	"github.com/mailforge/mailforge-cli/internal/accounts"
)

// Kind discriminates the two job procedures.
type Kind string

const (
	// KindCreate registers a brand new account from synthesized identity data.
	KindCreate Kind = "create"
	// KindChangePassword rotates the password of an existing account.
	KindChangePassword Kind = "change_password"
)

// Job is one immutable unit of work. Create jobs carry no input state; change
// jobs reference an existing email and its known current password, plus an
// optional explicit replacement password.
type Job struct {
	ID          string
	Kind        Kind
	Email       string
	Password    string
	NewPassword string
}

// NewCreateJob builds a create-account job.
func NewCreateJob() Job {
	return Job{ID: uuid.New().String(), Kind: KindCreate}
}

// NewChangePasswordJob builds a password-rotation job for an existing
// account. An empty newPassword means "generate one".
func NewChangePasswordJob(email, currentPassword, newPassword string) Job {
	return Job{
		ID:          uuid.New().String(),
		Kind:        KindChangePassword,
		Email:       email,
		Password:    currentPassword,
		NewPassword: newPassword,
	}
}

// Result is exactly one outcome per job: either a populated account record or
// the offending email with an error description. Failures are values, never
// propagated errors; a single job failing must not disturb the batch.
type Result struct {
	JobID          string
	Kind           Kind
	Record         accounts.Record
	Email          string
	Err            string
	ElapsedSeconds float64
}

// Failed reports whether the job ended in a failure result.
func (r Result) Failed() bool { return r.Err != "" }

// Change converts a successful password-rotation result into the store
// mutation it implies.
func (r Result) Change() accounts.Change {
	return accounts.Change{
		Email:          r.Record.Email,
		NewPassword:    r.Record.Password,
		TotpSecret:     r.Record.TotpSecret,
		UpdateTime:     r.Record.CreationTime,
		ElapsedSeconds: r.Record.ElapsedSeconds,
	}
}

func failure(job Job, email string, err error, elapsed float64) Result {
	return Result{
		JobID:          job.ID,
		Kind:           job.Kind,
		Email:          email,
		Err:            err.Error(),
		ElapsedSeconds: elapsed,
	}
}
