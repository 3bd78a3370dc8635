package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/auth"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSessions(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(auth.SessionConfig{Secret: strings.Repeat("k", 40)}, func() time.Time { return testNow })
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return sm
}

// authed attaches a session cookie for the given user to req.
func authed(t *testing.T, sm *auth.SessionManager, req *http.Request, userID string, role domain.Role) *http.Request {
	t.Helper()
	token, _, err := sm.Issue(domain.User{ID: userID, Username: "user-" + userID, Role: role})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	return req
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return env
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

type stubOrderService struct {
	createFn        func(context.Context, services.CreateOrderCommand) (services.Order, error)
	intentFn        func(context.Context, services.PaymentIntentCommand) (services.PaymentIntentResult, error)
	payFn           func(context.Context, services.OrderActionCommand) (services.Order, error)
	confirmFn       func(context.Context, string, string) (services.Order, error)
	updateStatusFn  func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	cancelFn        func(context.Context, services.OrderActionCommand) (services.Order, error)
	getFn           func(context.Context, string) (services.Order, error)
	listFn          func(context.Context) ([]services.Order, error)
	listUserOrderFn func(context.Context, string) ([]services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) CreatePaymentIntent(ctx context.Context, cmd services.PaymentIntentCommand) (services.PaymentIntentResult, error) {
	return s.intentFn(ctx, cmd)
}

func (s *stubOrderService) PayOrder(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.payFn(ctx, cmd)
}

func (s *stubOrderService) ConfirmCardPayment(ctx context.Context, orderID, intentID string) (services.Order, error) {
	return s.confirmFn(ctx, orderID, intentID)
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	return s.updateStatusFn(ctx, cmd)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, id string) (services.Order, error) {
	return s.getFn(ctx, id)
}

func (s *stubOrderService) ListOrders(ctx context.Context) ([]services.Order, error) {
	return s.listFn(ctx)
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID string) ([]services.Order, error) {
	return s.listUserOrderFn(ctx, userID)
}

func (s *stubOrderService) PurgeStalePending(context.Context, time.Duration) (int, error) {
	return 0, nil
}

type stubAuthService struct {
	registerFn       func(context.Context, services.RegisterCommand) (services.User, error)
	loginFn          func(context.Context, services.LoginCommand) (services.User, error)
	forgotEmailFn    func(context.Context, string) error
	forgotPasswordFn func(context.Context, string) error
	resetFn          func(context.Context, services.ResetPasswordCommand) error
}

func (s *stubAuthService) Register(ctx context.Context, cmd services.RegisterCommand) (services.User, error) {
	return s.registerFn(ctx, cmd)
}

func (s *stubAuthService) Login(ctx context.Context, cmd services.LoginCommand) (services.User, error) {
	return s.loginFn(ctx, cmd)
}

func (s *stubAuthService) ForgotEmail(ctx context.Context, username string) error {
	return s.forgotEmailFn(ctx, username)
}

func (s *stubAuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.forgotPasswordFn(ctx, email)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, cmd services.ResetPasswordCommand) error {
	return s.resetFn(ctx, cmd)
}

type stubUserService struct {
	listFn       func(context.Context) ([]services.User, error)
	getFn        func(context.Context, string) (services.User, error)
	sendVerifyFn func(context.Context, string) error
	verifyFn     func(context.Context, string) error
	updateFn     func(context.Context, services.UpdateUserCommand) (services.UpdateUserResult, error)
	deleteFn     func(context.Context, services.DeleteUserCommand) error
}

func (s *stubUserService) ListUsers(ctx context.Context) ([]services.User, error) {
	return s.listFn(ctx)
}

func (s *stubUserService) GetUser(ctx context.Context, id string) (services.User, error) {
	return s.getFn(ctx, id)
}

func (s *stubUserService) SendVerifyEmail(ctx context.Context, id string) error {
	return s.sendVerifyFn(ctx, id)
}

func (s *stubUserService) VerifyEmail(ctx context.Context, token string) error {
	return s.verifyFn(ctx, token)
}

func (s *stubUserService) UpdateUser(ctx context.Context, cmd services.UpdateUserCommand) (services.UpdateUserResult, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubUserService) DeleteUser(ctx context.Context, cmd services.DeleteUserCommand) error {
	return s.deleteFn(ctx, cmd)
}

type stubProductService struct {
	createFn func(context.Context, services.CreateProductCommand) (services.Product, error)
	listFn   func(context.Context) ([]services.Product, error)
	filterFn func(context.Context, domain.ProductFilter) ([]services.Product, error)
	getFn    func(context.Context, string) (services.Product, error)
	updateFn func(context.Context, services.UpdateProductCommand) (services.Product, error)
	deleteFn func(context.Context, services.DeleteProductCommand) error
}

func (s *stubProductService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubProductService) ListProducts(ctx context.Context) ([]services.Product, error) {
	return s.listFn(ctx)
}

func (s *stubProductService) FilterProducts(ctx context.Context, filter domain.ProductFilter) ([]services.Product, error) {
	return s.filterFn(ctx, filter)
}

func (s *stubProductService) GetProduct(ctx context.Context, id string) (services.Product, error) {
	return s.getFn(ctx, id)
}

func (s *stubProductService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubProductService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	return s.deleteFn(ctx, cmd)
}

type stubReviewService struct {
	createFn func(context.Context, services.CreateReviewCommand) (services.Review, error)
	listFn   func(context.Context) ([]services.Review, error)
	getFn    func(context.Context, string) (services.Review, error)
	updateFn func(context.Context, services.UpdateReviewCommand) (services.Review, error)
	deleteFn func(context.Context, services.DeleteReviewCommand) error
}

func (s *stubReviewService) CreateReview(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubReviewService) ListReviews(ctx context.Context) ([]services.Review, error) {
	return s.listFn(ctx)
}

func (s *stubReviewService) GetReview(ctx context.Context, id string) (services.Review, error) {
	return s.getFn(ctx, id)
}

func (s *stubReviewService) UpdateReview(ctx context.Context, cmd services.UpdateReviewCommand) (services.Review, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubReviewService) DeleteReview(ctx context.Context, cmd services.DeleteReviewCommand) error {
	return s.deleteFn(ctx, cmd)
}

type stubSystemService struct {
	report services.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}

type stubCleanupService struct {
	report services.CleanupReport
	err    error
	calls  int
}

func (s *stubCleanupService) Run(context.Context) (services.CleanupReport, error) {
	s.calls++
	return s.report, s.err
}

var (
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.AuthService    = (*stubAuthService)(nil)
	_ services.UserService    = (*stubUserService)(nil)
	_ services.ProductService = (*stubProductService)(nil)
	_ services.ReviewService  = (*stubReviewService)(nil)
	_ services.SystemService  = (*stubSystemService)(nil)
	_ services.CleanupService = (*stubCleanupService)(nil)
)
