package milestones

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stitchpay-backend/api/middleware"
	internalmilestones "github.com/angelmondragon/stitchpay-backend/internal/milestones"
	"github.com/angelmondragon/stitchpay-backend/internal/orders"
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

type stubMilestones struct {
	submitInput  *internalmilestones.SubmitInput
	resolveInput *internalmilestones.ResolveInput
	resolveErr   error
	pending      []internalmilestones.PendingMilestone
}

func (s *stubMilestones) Submit(ctx context.Context, input internalmilestones.SubmitInput) (*internalmilestones.Result, error) {
	s.submitInput = &input
	return &internalmilestones.Result{Milestone: &models.OrderMilestone{
		ID:             uuid.New(),
		OrderID:        input.OrderID,
		Milestone:      input.Milestone,
		ApprovalStatus: enums.ApprovalStatusPending,
	}}, nil
}

func (s *stubMilestones) Resolve(ctx context.Context, input internalmilestones.ResolveInput) (*internalmilestones.Result, error) {
	s.resolveInput = &input
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return &internalmilestones.Result{Milestone: &models.OrderMilestone{
		ID:             input.MilestoneID,
		OrderID:        uuid.New(),
		Milestone:      enums.MilestoneFittingReady,
		ApprovalStatus: input.Action,
	}}, nil
}

func (s *stubMilestones) GetPending(ctx context.Context, orderID uuid.UUID, viewer auth.Actor) ([]internalmilestones.PendingMilestone, error) {
	return s.pending, nil
}

type stubOrchestrator struct {
	submitted  []orders.MilestoneEvent
	resolved   []orders.MilestoneEvent
	resolveErr error
	redriven   uuid.UUID
}

func (s *stubOrchestrator) OnMilestoneSubmitted(ctx context.Context, event orders.MilestoneEvent) (*orders.Outcome, error) {
	s.submitted = append(s.submitted, event)
	return &orders.Outcome{OrderID: event.OrderID, OrderStatus: enums.OrderStatusInProgress}, nil
}

func (s *stubOrchestrator) OnMilestoneResolved(ctx context.Context, event orders.MilestoneEvent) (*orders.Outcome, error) {
	s.resolved = append(s.resolved, event)
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return &orders.Outcome{OrderID: event.OrderID, OrderStatus: enums.OrderStatusFittingApproved, Advanced: true}, nil
}

func (s *stubOrchestrator) Redrive(ctx context.Context, milestoneID uuid.UUID, actor auth.Actor) (*orders.Outcome, error) {
	s.redriven = milestoneID
	return &orders.Outcome{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func serve(method, pattern, target, body string, actor auth.Actor, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h(w, req.WithContext(middleware.WithActor(req.Context(), actor)))
	}))
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitNotifiesOrchestrator(t *testing.T) {
	svc := &stubMilestones{}
	orch := &stubOrchestrator{}
	tailor := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleTailor}
	orderID := uuid.New()
	body := `{"milestone":"fitting_ready","photoUrls":["https://cdn.example.com/a.jpg"]}`

	resp := serve(http.MethodPost, "/orders/{orderId}/milestones", "/orders/"+orderID.String()+"/milestones", body, tailor, Submit(svc, orch, testLogger()))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.submitInput == nil || svc.submitInput.Milestone != enums.MilestoneFittingReady {
		t.Fatalf("unexpected submit input %+v", svc.submitInput)
	}
	if svc.submitInput.Actor.ID != tailor.ID {
		t.Fatal("expected caller to be passed as actor")
	}
	if len(orch.submitted) != 1 || orch.submitted[0].OrderID != orderID {
		t.Fatalf("expected one submitted event, got %+v", orch.submitted)
	}
}

func TestSubmitValidatesPhotos(t *testing.T) {
	cases := map[string]string{
		"missing":   `{"milestone":"FITTING_READY"}`,
		"empty":     `{"milestone":"FITTING_READY","photoUrls":[]}`,
		"too many":  `{"milestone":"FITTING_READY","photoUrls":["https://a/1","https://a/2","https://a/3","https://a/4","https://a/5","https://a/6"]}`,
		"not a url": `{"milestone":"FITTING_READY","photoUrls":["photo"]}`,
		"bad type":  `{"milestone":"EMBROIDERY","photoUrls":["https://a/1"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubMilestones{}
			resp := serve(http.MethodPost, "/orders/{orderId}/milestones", "/orders/"+uuid.NewString()+"/milestones", body, auth.Actor{ID: uuid.New(), Role: enums.ActorRoleTailor}, Submit(svc, &stubOrchestrator{}, testLogger()))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
			if svc.submitInput != nil {
				t.Fatal("service must not be called")
			}
		})
	}
}

func TestResolveRunsSettlement(t *testing.T) {
	svc := &stubMilestones{}
	orch := &stubOrchestrator{}
	customer := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer}
	milestoneID := uuid.New()

	resp := serve(http.MethodPost, "/milestones/{milestoneId}/resolve", "/milestones/"+milestoneID.String()+"/resolve", `{"action":"approved"}`, customer, Resolve(svc, orch, testLogger()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.resolveInput.Action != enums.ApprovalStatusApproved {
		t.Fatalf("expected APPROVED got %s", svc.resolveInput.Action)
	}
	if len(orch.resolved) != 1 || orch.resolved[0].ActorID != customer.ID {
		t.Fatalf("unexpected resolved events %+v", orch.resolved)
	}
	var payload struct {
		Data struct {
			Settlement *struct {
				Advanced bool `json:"advanced"`
			} `json:"settlement"`
			SettlementError string `json:"settlementError"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Settlement == nil || !payload.Data.Settlement.Advanced || payload.Data.SettlementError != "" {
		t.Fatalf("unexpected payload %s", resp.Body.String())
	}
}

func TestResolveKeepsDecisionWhenSettlementFails(t *testing.T) {
	svc := &stubMilestones{}
	orch := &stubOrchestrator{resolveErr: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "escrow unavailable")}

	resp := serve(http.MethodPost, "/milestones/{milestoneId}/resolve", "/milestones/"+uuid.NewString()+"/resolve", `{"action":"APPROVED"}`, auth.Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer}, Resolve(svc, orch, testLogger()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var payload struct {
		Data struct {
			Milestone struct {
				ApprovalStatus string `json:"approvalStatus"`
			} `json:"milestone"`
			SettlementError string `json:"settlementError"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Milestone.ApprovalStatus != string(enums.ApprovalStatusApproved) {
		t.Fatalf("expected committed approval, got %s", resp.Body.String())
	}
	if payload.Data.SettlementError == "" {
		t.Fatal("expected settlement error to be reported")
	}
}

func TestResolveAlreadyResolvedSkipsSettlement(t *testing.T) {
	svc := &stubMilestones{resolveErr: pkgerrors.Wrap(pkgerrors.CodeStateConflict, internalmilestones.ErrAlreadyResolved, "milestone already resolved")}
	orch := &stubOrchestrator{}

	resp := serve(http.MethodPost, "/milestones/{milestoneId}/resolve", "/milestones/"+uuid.NewString()+"/resolve", `{"action":"REJECTED","comment":"hem uneven"}`, auth.Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer}, Resolve(svc, orch, testLogger()))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if len(orch.resolved) != 0 {
		t.Fatal("settlement must not run for a lost race")
	}
}

func TestResolveRejectsUnknownAction(t *testing.T) {
	svc := &stubMilestones{}
	resp := serve(http.MethodPost, "/milestones/{milestoneId}/resolve", "/milestones/"+uuid.NewString()+"/resolve", `{"action":"AUTO_APPROVED"}`, auth.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}, Resolve(svc, &stubOrchestrator{}, testLogger()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.resolveInput != nil {
		t.Fatal("auto approval is reserved for the sweep")
	}
}

func TestPendingListsMilestones(t *testing.T) {
	svc := &stubMilestones{pending: []internalmilestones.PendingMilestone{{ID: uuid.New(), Urgency: enums.UrgencyHigh}}}
	resp := serve(http.MethodGet, "/orders/{orderId}/milestones/pending", "/orders/"+uuid.NewString()+"/milestones/pending", "", auth.Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer}, Pending(svc, testLogger()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"urgency":"high"`) {
		t.Fatalf("expected urgency in body, got %s", resp.Body.String())
	}
}

func TestAdminRedrive(t *testing.T) {
	orch := &stubOrchestrator{}
	milestoneID := uuid.New()
	resp := serve(http.MethodPost, "/milestones/{milestoneId}/redrive", "/milestones/"+milestoneID.String()+"/redrive", "", auth.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}, AdminRedrive(orch, testLogger()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if orch.redriven != milestoneID {
		t.Fatalf("expected redrive of %s got %s", milestoneID, orch.redriven)
	}
}
