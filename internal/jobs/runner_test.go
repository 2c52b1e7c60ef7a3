package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mailforge/mailforge-cli/internal/accounts"
	"github.com/mailforge/mailforge-cli/internal/browser"
	"github.com/mailforge/mailforge-cli/internal/config"
	"github.com/mailforge/mailforge-cli/internal/jobs"
)

// fakeSession scripts the automation surface: it records every primitive
// issued against it and can be told to fail on a given URL or selector.
type fakeSession struct {
	actions        []string
	failOnNavigate string
	failOnSelector string
	closed         bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.actions = append(s.actions, "navigate:"+url)
	if s.failOnNavigate != "" && strings.Contains(url, s.failOnNavigate) {
		return fmt.Errorf("navigation to %s refused", url)
	}
	return nil
}

func (s *fakeSession) WaitVisible(_ context.Context, selector string, _ time.Duration) (browser.Element, error) {
	if selector == s.failOnSelector {
		return browser.Element{}, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return browser.Element{Selector: selector}, nil
}

func (s *fakeSession) WaitClickable(_ context.Context, selector string, _ time.Duration) (browser.Element, error) {
	if selector == s.failOnSelector {
		return browser.Element{}, fmt.Errorf("%w: %s", browser.ErrElementNotClickable, selector)
	}
	return browser.Element{Selector: selector}, nil
}

func (s *fakeSession) Fill(_ context.Context, el browser.Element, text string) error {
	s.actions = append(s.actions, "fill:"+el.Selector+":"+text)
	return nil
}

func (s *fakeSession) Click(_ context.Context, el browser.Element) error {
	s.actions = append(s.actions, "click:"+el.Selector)
	return nil
}

func (s *fakeSession) Close(_ context.Context) error {
	s.closed = true
	return nil
}

type fixedSecrets struct {
	secret string
	err    error
}

func (f fixedSecrets) GenerateSecret(string) (string, error) { return f.secret, f.err }

func newTestRunner(t *testing.T, secrets jobs.SecretProvider) *jobs.Runner {
	t.Helper()
	browserCfg := config.BrowserConfig{ElementTimeout: time.Second}
	identityCfg := config.IdentityConfig{PasswordLength: 12, EmailDomain: "outlook.com"}
	return jobs.NewRunner(browserCfg, identityCfg, secrets, zaptest.NewLogger(t))
}

func TestRunner_CreateSuccess(t *testing.T) {
	sess := &fakeSession{}
	runner := newTestRunner(t, fixedSecrets{secret: "JBSWY3DPEHPK3PXP"})

	result := runner.Run(context.Background(), sess, jobs.NewCreateJob())

	require.False(t, result.Failed(), "unexpected failure: %s", result.Err)
	assert.Equal(t, jobs.KindCreate, result.Kind)
	assert.True(t, strings.HasSuffix(result.Record.Email, "@outlook.com"))
	assert.Len(t, result.Record.Password, 12)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", result.Record.TotpSecret)
	assert.True(t, result.Record.Secured())
	assert.GreaterOrEqual(t, result.ElapsedSeconds, 0.0)

	_, err := time.Parse(accounts.TimeLayout, result.Record.CreationTime)
	assert.NoError(t, err)

	require.NotEmpty(t, sess.actions)
	assert.Equal(t, "navigate:https://signup.live.com/signup", sess.actions[0])
	assert.Contains(t, sess.actions, "navigate:https://totp.danhersam.com/")
	assert.Equal(t, "click:button.btn-primary", sess.actions[len(sess.actions)-1],
		"TOTP enrollment is the final step of a successful run")
}

func TestRunner_CreateElementFailureBecomesResult(t *testing.T) {
	sess := &fakeSession{failOnSelector: "#PasswordInput"}
	runner := newTestRunner(t, fixedSecrets{secret: "UNUSED"})

	result := runner.Run(context.Background(), sess, jobs.NewCreateJob())

	require.True(t, result.Failed())
	assert.Contains(t, result.Err, "element not found")
	assert.NotEmpty(t, result.Email, "failure results carry the offending email")
	assert.GreaterOrEqual(t, result.ElapsedSeconds, 0.0)
	assert.Empty(t, result.Record.Email, "no record payload on failure")
}

func TestRunner_TotpBindFailureDegradesToUnsecured(t *testing.T) {
	sess := &fakeSession{failOnNavigate: "totp.danhersam.com"}
	runner := newTestRunner(t, fixedSecrets{secret: "NEVERREACHED"})

	result := runner.Run(context.Background(), sess, jobs.NewCreateJob())

	require.False(t, result.Failed(), "TOTP bind failure must not fail the job")
	assert.Empty(t, result.Record.TotpSecret)
	assert.False(t, result.Record.Secured())
}

func TestRunner_SecretProviderFailureDegradesToUnsecured(t *testing.T) {
	sess := &fakeSession{}
	runner := newTestRunner(t, fixedSecrets{err: errors.New("entropy exhausted")})

	result := runner.Run(context.Background(), sess, jobs.NewCreateJob())

	require.False(t, result.Failed())
	assert.Empty(t, result.Record.TotpSecret)
}

func TestRunner_ChangePasswordExplicitNewPassword(t *testing.T) {
	sess := &fakeSession{}
	runner := newTestRunner(t, fixedSecrets{secret: "ROTATESECRET"})
	job := jobs.NewChangePasswordJob("target@outlook.com", "OldPass1!", "Explicit9$x")

	result := runner.Run(context.Background(), sess, job)

	require.False(t, result.Failed(), "unexpected failure: %s", result.Err)
	assert.Equal(t, jobs.KindChangePassword, result.Kind)
	assert.Equal(t, "target@outlook.com", result.Record.Email)
	assert.Equal(t, "Explicit9$x", result.Record.Password)
	assert.Equal(t, "ROTATESECRET", result.Record.TotpSecret)

	change := result.Change()
	assert.Equal(t, "target@outlook.com", change.Email)
	assert.Equal(t, "Explicit9$x", change.NewPassword)
	assert.Equal(t, "ROTATESECRET", change.TotpSecret)

	assert.Contains(t, sess.actions, "fill:input[name=\"loginfmt\"]:target@outlook.com")
	assert.Contains(t, sess.actions, "fill:#currentPassword:OldPass1!")
	assert.Contains(t, sess.actions, "fill:#newPassword:Explicit9$x")
	assert.Contains(t, sess.actions, "fill:#confirmNewPassword:Explicit9$x")
	assert.Contains(t, sess.actions, "click:#save")
}

func TestRunner_ChangePasswordGeneratesWhenUnset(t *testing.T) {
	sess := &fakeSession{}
	runner := newTestRunner(t, fixedSecrets{secret: "S"})
	job := jobs.NewChangePasswordJob("target@outlook.com", "OldPass1!", "")

	result := runner.Run(context.Background(), sess, job)

	require.False(t, result.Failed())
	assert.Len(t, result.Record.Password, 12)
	assert.NotEqual(t, "OldPass1!", result.Record.Password)
}

func TestRunner_ChangePasswordLoginFailure(t *testing.T) {
	sess := &fakeSession{failOnSelector: "#idSIButton9"}
	runner := newTestRunner(t, fixedSecrets{secret: "S"})
	job := jobs.NewChangePasswordJob("target@outlook.com", "OldPass1!", "")

	result := runner.Run(context.Background(), sess, job)

	require.True(t, result.Failed())
	assert.Equal(t, "target@outlook.com", result.Email)
	assert.Contains(t, result.Err, "element not clickable")
}

func TestOTPSecretProvider_GeneratesBase32Secret(t *testing.T) {
	provider := jobs.OTPSecretProvider{Issuer: "mailforge"}

	secret, err := provider.GenerateSecret("someone@outlook.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	other, err := provider.GenerateSecret("someone@outlook.com")
	require.NoError(t, err)
	assert.NotEqual(t, secret, other, "secrets must be unpredictable per call")
}
