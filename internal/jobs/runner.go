// File: internal/jobs/runner.go
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailforge/mailforge-cli/internal/accounts"
	"github.com/mailforge/mailforge-cli/internal/browser"
	"github.com/mailforge/mailforge-cli/internal/config"
	"github.com/mailforge/mailforge-cli/internal/identity"
)

// Flow endpoints and selectors, taken from the live signup and account
// surfaces the procedures drive.
const (
	signupURL         = "https://signup.live.com/signup"
	loginURL          = "https://login.live.com/"
	passwordChangeURL = "https://account.live.com/password/change"
	totpToolURL       = "https://totp.danhersam.com/"

	selMemberName    = "#MemberName"
	selSignupAction  = "#iSignupAction"
	selPasswordInput = "#PasswordInput"
	selFirstName     = "#FirstName"
	selLastName      = "#LastName"
	selBirthYear     = "#BirthYear"
	selBirthMonth    = "#BirthMonth"
	selBirthDay      = "#BirthDay"

	selLoginEmail    = `input[name="loginfmt"]`
	selLoginPassword = `input[name="passwd"]`
	selLoginSubmit   = "#idSIButton9"

	selCurrentPassword = "#currentPassword"
	selNewPassword     = "#newPassword"
	selConfirmPassword = "#confirmNewPassword"
	selSaveButton      = "#save"

	selTotpSecret   = "#secret"
	selTotpGenerate = "button.btn-primary"
)

// Runner executes job procedures against a browser session it does not own.
// Every automation error is converted into a failure Result; Run never
// returns an error.
type Runner struct {
	browserCfg  config.BrowserConfig
	identityCfg config.IdentityConfig
	secrets     SecretProvider
	logger      *zap.Logger
}

// NewRunner wires the procedures to their configuration and secret source.
func NewRunner(browserCfg config.BrowserConfig, identityCfg config.IdentityConfig, secrets SecretProvider, logger *zap.Logger) *Runner {
	return &Runner{
		browserCfg:  browserCfg,
		identityCfg: identityCfg,
		secrets:     secrets,
		logger:      logger.Named("runner"),
	}
}

// Run executes the job's procedure on the given session and returns exactly
// one Result.
func (r *Runner) Run(ctx context.Context, sess browser.Session, job Job) Result {
	switch job.Kind {
	case KindChangePassword:
		return r.runChangePassword(ctx, sess, job)
	default:
		return r.runCreate(ctx, sess, job)
	}
}

// runCreate drives the signup flow for a freshly synthesized identity. The
// identity is not checked against the store first; a handle collision comes
// back from the signup page as an ordinary failure result.
func (r *Runner) runCreate(ctx context.Context, sess browser.Session, job Job) Result {
	start := time.Now()

	id := identity.Synthesize(r.identityCfg.PasswordLength)
	email := fmt.Sprintf("%s@%s", id.EmailLocalPart, r.identityCfg.EmailDomain)
	log := r.logger.With(zap.String("job_id", job.ID), zap.String("email", email))
	log.Info("Starting account creation")

	fail := func(err error) Result {
		elapsed := time.Since(start).Seconds()
		log.Warn("Account creation failed", zap.Error(err), zap.Float64("elapsed_s", elapsed))
		return failure(job, email, err, elapsed)
	}

	if err := sess.Navigate(ctx, signupURL); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selMemberName, id.EmailLocalPart); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selSignupAction); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selPasswordInput, id.Password); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selSignupAction); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selFirstName, id.FirstName); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selLastName, id.LastName); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selSignupAction); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selBirthYear, fmt.Sprintf("%d", id.BirthYear)); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selBirthMonth); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, fmt.Sprintf("option[value='%d']", id.BirthMonth)); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selBirthDay, fmt.Sprintf("%d", id.BirthDay)); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selSignupAction); err != nil {
		return fail(err)
	}

	// Verification interstitials beyond this point are out of our hands; the
	// TOTP binding is the final step of a successful run.
	secret := r.bindTOTP(ctx, sess, email, log)

	elapsed := time.Since(start).Seconds()
	log.Info("Account created", zap.Float64("elapsed_s", elapsed), zap.Bool("secured", secret != ""))

	return Result{
		JobID: job.ID,
		Kind:  job.Kind,
		Email: email,
		Record: accounts.Record{
			Email:          email,
			Password:       id.Password,
			FirstName:      id.FirstName,
			LastName:       id.LastName,
			BirthYear:      id.BirthYear,
			BirthMonth:     id.BirthMonth,
			BirthDay:       id.BirthDay,
			TotpSecret:     secret,
			CreationTime:   start.Format(accounts.TimeLayout),
			ElapsedSeconds: elapsed,
		},
		ElapsedSeconds: elapsed,
	}
}

// runChangePassword logs in with the known credentials and rotates the
// password through the account settings flow.
func (r *Runner) runChangePassword(ctx context.Context, sess browser.Session, job Job) Result {
	start := time.Now()

	newPassword := job.NewPassword
	if newPassword == "" {
		newPassword = identity.RandomPassword(r.identityCfg.PasswordLength)
	}
	log := r.logger.With(zap.String("job_id", job.ID), zap.String("email", job.Email))
	log.Info("Starting password change")

	fail := func(err error) Result {
		elapsed := time.Since(start).Seconds()
		log.Warn("Password change failed", zap.Error(err), zap.Float64("elapsed_s", elapsed))
		return failure(job, job.Email, err, elapsed)
	}

	if err := sess.Navigate(ctx, loginURL); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selLoginEmail, job.Email); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selLoginSubmit); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selLoginPassword, job.Password); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selLoginSubmit); err != nil {
		return fail(err)
	}
	if err := r.settle(ctx); err != nil {
		return fail(err)
	}

	if err := sess.Navigate(ctx, passwordChangeURL); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selCurrentPassword, job.Password); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selNewPassword, newPassword); err != nil {
		return fail(err)
	}
	if err := r.fill(ctx, sess, selConfirmPassword, newPassword); err != nil {
		return fail(err)
	}
	if err := r.click(ctx, sess, selSaveButton); err != nil {
		return fail(err)
	}
	if err := r.settle(ctx); err != nil {
		return fail(err)
	}

	secret := r.bindTOTP(ctx, sess, job.Email, log)

	elapsed := time.Since(start).Seconds()
	log.Info("Password changed", zap.Float64("elapsed_s", elapsed), zap.Bool("secured", secret != ""))

	return Result{
		JobID: job.ID,
		Kind:  job.Kind,
		Email: job.Email,
		Record: accounts.Record{
			Email:          job.Email,
			Password:       newPassword,
			TotpSecret:     secret,
			CreationTime:   start.Format(accounts.TimeLayout),
			ElapsedSeconds: elapsed,
		},
		ElapsedSeconds: elapsed,
	}
}

// bindTOTP is the final sub-step of both procedures: generate a secret and
// enroll it through the TOTP tool. A failure here degrades to an unsecured
// account (empty secret), it does not fail the job.
func (r *Runner) bindTOTP(ctx context.Context, sess browser.Session, email string, log *zap.Logger) string {
	log.Info("Binding TOTP secret")

	if err := sess.Navigate(ctx, totpToolURL); err != nil {
		log.Warn("TOTP binding failed, account left unsecured", zap.Error(err))
		return ""
	}
	if err := r.settle(ctx); err != nil {
		log.Warn("TOTP binding failed, account left unsecured", zap.Error(err))
		return ""
	}

	secret, err := r.secrets.GenerateSecret(email)
	if err != nil {
		log.Warn("TOTP binding failed, account left unsecured", zap.Error(err))
		return ""
	}

	if err := r.fill(ctx, sess, selTotpSecret, secret); err != nil {
		log.Warn("TOTP binding failed, account left unsecured", zap.Error(err))
		return ""
	}
	if err := r.click(ctx, sess, selTotpGenerate); err != nil {
		log.Warn("TOTP binding failed, account left unsecured", zap.Error(err))
		return ""
	}
	if err := r.settle(ctx); err != nil {
		log.Warn("TOTP binding failed, account left unsecured", zap.Error(err))
		return ""
	}

	return secret
}

func (r *Runner) fill(ctx context.Context, sess browser.Session, selector, text string) error {
	el, err := sess.WaitVisible(ctx, selector, r.browserCfg.ElementTimeout)
	if err != nil {
		return err
	}
	return sess.Fill(ctx, el, text)
}

func (r *Runner) click(ctx context.Context, sess browser.Session, selector string) error {
	el, err := sess.WaitClickable(ctx, selector, r.browserCfg.ElementTimeout)
	if err != nil {
		return err
	}
	return sess.Click(ctx, el)
}

// settle waits out the configured post-load delay, bailing early if the job
// context ends first.
func (r *Runner) settle(ctx context.Context) error {
	if r.browserCfg.PostLoadWait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.browserCfg.PostLoadWait):
		return nil
	}
}
