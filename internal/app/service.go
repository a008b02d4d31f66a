package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cargoops/api/internal/audit"
	"cargoops/api/internal/auth"
	"cargoops/api/internal/authpw"
	"cargoops/api/internal/blob"
	"cargoops/api/internal/config"
	"cargoops/api/internal/email"
	"cargoops/api/internal/extract"
	"cargoops/api/internal/manifestrepo"
	"cargoops/api/internal/rbac"
	"cargoops/api/internal/search"
	"cargoops/api/internal/store"
	"cargoops/api/internal/util"
	"cargoops/api/internal/workflow"
)

// Session is an authenticated operator context derived from an access
// token.
type Session struct {
	Token        string
	RefreshToken string
	OperatorID   string
	Name         string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type CreateShipmentInput struct {
	VesselName   string    `json:"vesselName"`
	VoyageNumber string    `json:"voyageNumber"`
	ETA          time.Time `json:"eta"`
}

type AllocationPlanInput struct {
	TotalUnits     int                `json:"totalUnits"`
	ExpectedWeight float64            `json:"expectedWeight"`
	ExpectedCBM    float64            `json:"expectedCbm"`
	Allocations    []store.Allocation `json:"allocations"`
}

type ValidationInput struct {
	ActualWeight float64 `json:"actualWeight"`
	ActualCBM    float64 `json:"actualCbm"`
}

type dataStore interface {
	CreateShipment(context.Context, store.Shipment) error
	GetShipment(context.Context, string) (store.Shipment, error)
	ListShipments(context.Context) ([]store.Shipment, error)
	UpdateShipment(context.Context, store.Shipment) error
	DeleteShipment(context.Context, string) error
	UpsertAllocationPlan(context.Context, store.AllocationPlan) error
	GetAllocationPlan(context.Context, string) (store.AllocationPlan, error)
	CreateDocument(context.Context, store.Document) error
	GetDocument(context.Context, string) (store.Document, error)
	ListShipmentDocuments(context.Context, string) ([]store.Document, error)
	UpdateDocument(context.Context, store.Document) error
	DeleteDocument(context.Context, string) error
	SaveDocumentPayload(context.Context, string, string, []byte) error
	GetDocumentPayload(context.Context, string) (string, []byte, error)
	AddFieldComment(context.Context, store.FieldComment) error
	ListFieldComments(context.Context, string) ([]store.FieldComment, error)
	CreateManifest(context.Context, store.Manifest) error
	UpdateManifest(context.Context, store.Manifest) error
	GetManifest(context.Context, string) (store.Manifest, error)
	GetShipmentManifest(context.Context, string) (store.Manifest, error)
	CreateOperator(context.Context, store.Operator) error
	GetOperator(context.Context, string) (store.Operator, error)
	GetOperatorByEmail(context.Context, string) (store.Operator, error)
	UpdateOperatorPassword(context.Context, string, string) error
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Operator, error)
	RevokeRefreshSession(context.Context, string) error
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Redis when configured, Postgres
// otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, operatorID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Operator, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type manifestService interface {
	EnsureRepo(shipmentID string, initial manifestrepo.Snapshot, author string) error
	CommitSnapshot(shipmentID string, snapshot manifestrepo.Snapshot, author, message string) (manifestrepo.CommitInfo, error)
	History(shipmentID string, limit int) ([]manifestrepo.CommitInfo, error)
	GetSnapshotByHash(shipmentID, hash string) (manifestrepo.Snapshot, error)
	TagSubmission(shipmentID, hash, name string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	manifests manifestService
	ledger    *audit.Ledger
	extractor *extract.Manager
	authpw    *authpw.Service
	search    *search.Service
	mailer    *email.Service
	blobs     *blob.Store
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		manifests: deps.Manifests,
		ledger:    deps.Ledger,
		extractor: deps.Extractor,
		authpw:    authpw.NewService(dataStore),
		search:    deps.Search,
		mailer:    deps.Mailer,
		blobs:     deps.Blobs,
	}
}

// Dependencies groups the optional and required collaborators wired in
// main. Sessions, Search, Mailer and Blobs may be nil.
type Dependencies struct {
	Sessions  sessionStore
	Manifests manifestService
	Ledger    *audit.Ledger
	Extractor *extract.Manager
	Search    *search.Service
	Mailer    *email.Service
	Blobs     *blob.Store
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a fresh database with operator accounts and a demo
// shipment. It is a no-op when shipments already exist.
func (s *Service) Bootstrap(ctx context.Context) error {
	shipments, err := s.store.ListShipments(ctx)
	if err != nil {
		return err
	}
	if len(shipments) > 0 {
		return nil
	}

	operators := []struct {
		Email string
		Name  string
		Role  string
	}{
		{Email: "admin@cargoops.local", Name: "Dana Admin", Role: string(rbac.RoleAdmin)},
		{Email: "supervisor@cargoops.local", Name: "Priya Menon", Role: string(rbac.RoleSupervisor)},
		{Email: "ops@cargoops.local", Name: "Wei Lim", Role: string(rbac.RoleOperator)},
	}
	for _, seed := range operators {
		hash, err := authpw.HashPassword("cargoops-dev")
		if err != nil {
			return err
		}
		if err := s.store.CreateOperator(ctx, store.Operator{
			ID:           util.NewID("op"),
			Email:        seed.Email,
			Name:         seed.Name,
			Role:         seed.Role,
			PasswordHash: hash,
		}); err != nil {
			return err
		}
	}

	shipment := store.Shipment{
		ID:           util.NewID("ship"),
		VesselName:   "MV Pacific Harmony",
		VoyageNumber: "041E",
		ETA:          time.Now().Add(10 * 24 * time.Hour).UTC().Truncate(time.Hour),
		Stages:       workflow.StageFlags{BerthConfirmation: true},
	}
	shipment.Status = workflow.StatusFor(shipment.Stages)
	if err := s.store.CreateShipment(ctx, shipment); err != nil {
		return err
	}
	if err := s.store.UpsertAllocationPlan(ctx, store.AllocationPlan{
		ID:             util.NewID("plan"),
		ShipmentID:     shipment.ID,
		TotalUnits:     160,
		ExpectedWeight: 252.5,
		ExpectedCBM:    1960,
		Allocations: []store.Allocation{
			{Consignee: "Borneo Motors Singapore", Units: 120},
			{Consignee: "Cycle & Carriage Pte", Units: 40},
		},
	}); err != nil {
		return err
	}
	if err := s.recordAudit(ctx, "system", "Shipment Created",
		"Seeded shipment "+shipment.VesselName+" voyage "+shipment.VoyageNumber, shipment.ID); err != nil {
		return err
	}
	s.indexShipment(shipment)
	return nil
}

// Sessions

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	operator, err := s.authpw.SignIn(ctx, strings.TrimSpace(strings.ToLower(emailAddr)), password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, operator)
}

func (s *Service) ChangePassword(ctx context.Context, session Session, currentPassword, newPassword string) error {
	if _, err := s.authpw.SignIn(ctx, session.Email, currentPassword); err != nil {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Current password is incorrect", nil)
	}
	if err := s.authpw.SetPassword(ctx, session.OperatorID, newPassword); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	operator, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The Redis store only carries the operator id. Reload the full
	// record so role changes take effect on refresh.
	if operator.Email == "" {
		operator, err = s.store.GetOperator(ctx, operator.ID)
		if err != nil {
			return Session{}, err
		}
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, operator)
}

func (s *Service) issueSession(ctx context.Context, operator store.Operator) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  operator.ID,
		Name: operator.Name,
		Role: operator.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), operator.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		OperatorID:   operator.ID,
		Name:         operator.Name,
		Email:        operator.Email,
		Role:         operator.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	operator, err := s.store.GetOperator(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:      token,
		OperatorID: operator.ID,
		Name:       operator.Name,
		Email:      operator.Email,
		Role:       operator.Role,
		JTI:        claims.JTI,
		ExpiresAt:  time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Shipments

func (s *Service) CreateShipment(ctx context.Context, input CreateShipmentInput, actor string) (store.Shipment, error) {
	vessel := strings.TrimSpace(input.VesselName)
	voyage := strings.TrimSpace(input.VoyageNumber)
	if vessel == "" || voyage == "" {
		return store.Shipment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "vesselName and voyageNumber are required", nil)
	}
	shipment := store.Shipment{
		ID:           util.NewID("ship"),
		VesselName:   vessel,
		VoyageNumber: voyage,
		ETA:          input.ETA,
		Stages:       workflow.StageFlags{},
	}
	shipment.Status = workflow.StatusFor(shipment.Stages)
	if err := s.store.CreateShipment(ctx, shipment); err != nil {
		return store.Shipment{}, err
	}
	if err := s.recordAudit(ctx, actor, "Shipment Created",
		"Created shipment "+vessel+" voyage "+voyage, shipment.ID); err != nil {
		return store.Shipment{}, err
	}
	s.indexShipment(shipment)
	return shipment, nil
}

func (s *Service) GetShipment(ctx context.Context, id string) (store.Shipment, error) {
	shipment, err := s.store.GetShipment(ctx, id)
	if err != nil {
		return store.Shipment{}, notFoundOr(err, "shipment not found")
	}
	return shipment, nil
}

func (s *Service) ListShipments(ctx context.Context) ([]store.Shipment, error) {
	return s.store.ListShipments(ctx)
}

func (s *Service) UpdateShipmentDetails(ctx context.Context, id string, input CreateShipmentInput, actor string) (store.Shipment, error) {
	shipment, err := s.GetShipment(ctx, id)
	if err != nil {
		return store.Shipment{}, err
	}
	if vessel := strings.TrimSpace(input.VesselName); vessel != "" {
		shipment.VesselName = vessel
	}
	if voyage := strings.TrimSpace(input.VoyageNumber); voyage != "" {
		shipment.VoyageNumber = voyage
	}
	if !input.ETA.IsZero() {
		shipment.ETA = input.ETA
	}
	if err := s.store.UpdateShipment(ctx, shipment); err != nil {
		return store.Shipment{}, err
	}
	if err := s.recordAudit(ctx, actor, "Shipment Updated",
		"Updated shipment details for "+shipment.VesselName+" voyage "+shipment.VoyageNumber, shipment.ID); err != nil {
		return store.Shipment{}, err
	}
	s.indexShipment(shipment)
	return shipment, nil
}

func (s *Service) DeleteShipment(ctx context.Context, id, actor string) error {
	shipment, err := s.GetShipment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteShipment(ctx, id); err != nil {
		return err
	}
	if err := s.recordAudit(ctx, actor, "Shipment Deleted",
		"Deleted shipment "+shipment.VesselName+" voyage "+shipment.VoyageNumber, shipment.ID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteShipment(id)
	}
	return nil
}

// Stage progression

// CompleteStage marks one workflow stage done and re-derives the shipment
// status. Completing a stage out of order is rejected, and pre-submission
// cannot complete until document units reconcile against the plan.
func (s *Service) CompleteStage(ctx context.Context, shipmentID string, stage workflow.Stage, actor string) (store.Shipment, error) {
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return store.Shipment{}, err
	}
	if workflow.Index(stage) < 0 {
		return store.Shipment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown stage "+string(stage), nil)
	}
	if shipment.Stages.Completed(stage) {
		return shipment, nil
	}
	if !workflow.CanAdvance(shipment.Stages, stage) {
		return store.Shipment{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"cannot complete "+string(stage)+" before earlier stages", map[string]any{
				"stage":  stage,
				"status": shipment.Status,
			})
	}
	if err := s.checkStageGate(ctx, shipment, stage); err != nil {
		return store.Shipment{}, err
	}

	shipment.Stages = shipment.Stages.WithCompleted(stage)
	shipment.Status = workflow.StatusFor(shipment.Stages)
	if err := s.store.UpdateShipment(ctx, shipment); err != nil {
		return store.Shipment{}, err
	}
	if err := s.recordAudit(ctx, actor, "Stage Completed",
		"Completed "+string(stage)+" for "+shipment.VesselName+" voyage "+shipment.VoyageNumber, shipment.ID); err != nil {
		return store.Shipment{}, err
	}
	s.indexShipment(shipment)
	return shipment, nil
}

// AdvanceStage moves a shipment directly to a target stage, completing
// everything before it. The ordering rule and the pre-submission
// reconciliation gate both apply.
func (s *Service) AdvanceStage(ctx context.Context, shipmentID string, target workflow.Stage, actor string) (store.Shipment, error) {
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return store.Shipment{}, err
	}
	if workflow.Index(target) < 0 && target != workflow.StageCompleted {
		return store.Shipment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown stage "+string(target), nil)
	}
	if !workflow.CanAdvance(shipment.Stages, target) {
		return store.Shipment{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"cannot advance to "+string(target)+" from "+string(shipment.Status), map[string]any{
				"target": target,
				"status": shipment.Status,
			})
	}
	if target == workflow.StagePortnetSubmission {
		if err := s.checkStageGate(ctx, shipment, workflow.StagePreSubmission); err != nil {
			return store.Shipment{}, err
		}
	}

	if target == workflow.StageCompleted {
		for _, stage := range workflow.Order {
			shipment.Stages = shipment.Stages.WithCompleted(stage)
		}
	} else {
		shipment.Stages = workflow.Advance(shipment.Stages, target)
	}
	shipment.Status = workflow.StatusFor(shipment.Stages)
	if err := s.store.UpdateShipment(ctx, shipment); err != nil {
		return store.Shipment{}, err
	}
	if err := s.recordAudit(ctx, actor, "Stage Advanced",
		"Advanced "+shipment.VesselName+" voyage "+shipment.VoyageNumber+" to "+string(shipment.Status), shipment.ID); err != nil {
		return store.Shipment{}, err
	}
	s.indexShipment(shipment)
	return shipment, nil
}

// checkStageGate enforces the data gates layered on top of stage
// ordering. Completing pre-submission requires the reconciliation to
// match exactly.
func (s *Service) checkStageGate(ctx context.Context, shipment store.Shipment, stage workflow.Stage) error {
	if stage != workflow.StagePreSubmission {
		return nil
	}
	reconciliation, err := s.ReconcileShipment(ctx, shipment.ID)
	if err != nil {
		return err
	}
	if reconciliation.Outcome != workflow.ReconcileMatch {
		return domainError(http.StatusConflict, "GATE_NOT_SATISFIED",
			"document units do not reconcile against the allocation plan", map[string]any{
				"outcome":       reconciliation.Outcome,
				"documentUnits": reconciliation.DocumentUnits,
				"planUnits":     reconciliation.PlanUnits,
			})
	}
	return nil
}

// Allocation plan and reconciliation

func (s *Service) UpsertAllocationPlan(ctx context.Context, shipmentID string, input AllocationPlanInput, actor string) (store.AllocationPlan, error) {
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return store.AllocationPlan{}, err
	}
	if input.TotalUnits <= 0 {
		return store.AllocationPlan{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "totalUnits must be positive", nil)
	}
	plan := store.AllocationPlan{
		ID:             util.NewID("plan"),
		ShipmentID:     shipment.ID,
		TotalUnits:     input.TotalUnits,
		ExpectedWeight: input.ExpectedWeight,
		ExpectedCBM:    input.ExpectedCBM,
		Allocations:    input.Allocations,
	}
	if err := s.store.UpsertAllocationPlan(ctx, plan); err != nil {
		return store.AllocationPlan{}, err
	}
	if err := s.recordAudit(ctx, actor, "Allocation Plan Updated",
		"Set allocation plan to "+strconv.Itoa(input.TotalUnits)+" units for "+shipment.VesselName, shipment.ID); err != nil {
		return store.AllocationPlan{}, err
	}
	return s.store.GetAllocationPlan(ctx, shipment.ID)
}

func (s *Service) GetAllocationPlan(ctx context.Context, shipmentID string) (store.AllocationPlan, error) {
	plan, err := s.store.GetAllocationPlan(ctx, shipmentID)
	if err != nil {
		return store.AllocationPlan{}, notFoundOr(err, "allocation plan not found")
	}
	return plan, nil
}

// ReconcileShipment recomputes the unit reconciliation from current
// document state. It is never persisted; reads always reflect the latest
// extracted fields.
func (s *Service) ReconcileShipment(ctx context.Context, shipmentID string) (workflow.Reconciliation, error) {
	docs, err := s.store.ListShipmentDocuments(ctx, shipmentID)
	if err != nil {
		return workflow.Reconciliation{}, err
	}
	units := make([]workflow.DocumentUnits, 0, len(docs))
	for _, doc := range docs {
		units = append(units, workflow.DocumentUnits{
			Ready: doc.ProcessingStatus == store.ProcessingReady,
			Units: documentUnits(doc),
		})
	}
	plan, err := s.store.GetAllocationPlan(ctx, shipmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.Reconcile(units, 0, false), nil
		}
		return workflow.Reconciliation{}, err
	}
	return workflow.Reconcile(units, plan.TotalUnits, true), nil
}

// documentUnits parses the extracted unit count. Unparseable or missing
// values count as zero.
func documentUnits(doc store.Document) int {
	raw := strings.TrimSpace(doc.ExtractedFields["numberOfUnits"].Value)
	if raw == "" {
		return 0
	}
	units, err := strconv.Atoi(raw)
	if err != nil || units < 0 {
		return 0
	}
	return units
}

// Pre-arrival validation

// RunValidation evaluates actual discharge quantities against the plan's
// expected totals within the configured tolerance bands, and stores the
// checks on the shipment.
func (s *Service) RunValidation(ctx context.Context, shipmentID string, input ValidationInput, actor string) (store.Shipment, error) {
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return store.Shipment{}, err
	}
	plan, err := s.store.GetAllocationPlan(ctx, shipmentID)
	if err != nil {
		return store.Shipment{}, notFoundOr(err, "allocation plan not found")
	}
	checks := workflow.CheckTolerances(input.ActualWeight, plan.ExpectedWeight, input.ActualCBM, plan.ExpectedCBM, workflow.DefaultToleranceConfig)
	shipment.Validation = checks
	if err := s.store.UpdateShipment(ctx, shipment); err != nil {
		return store.Shipment{}, err
	}
	outcome := "failed"
	if workflow.AllTolerancesPassed(checks) {
		outcome = "passed"
	}
	if err := s.recordAudit(ctx, actor, "Validation Complete",
		"Pre-arrival validation "+outcome+" for "+shipment.VesselName+" voyage "+shipment.VoyageNumber, shipment.ID); err != nil {
		return store.Shipment{}, err
	}
	return shipment, nil
}

// OverrideToleranceCheck records a reason against a failed check so it no
// longer blocks validation.
func (s *Service) OverrideToleranceCheck(ctx context.Context, shipmentID, field, reason, actor string) (store.Shipment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return store.Shipment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "override reason is required", nil)
	}
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return store.Shipment{}, err
	}
	found := false
	for i, check := range shipment.Validation {
		if check.Field == field {
			shipment.Validation[i].OverrideReason = reason
			found = true
		}
	}
	if !found {
		return store.Shipment{}, domainError(http.StatusNotFound, "NOT_FOUND", "no tolerance check for field "+field, nil)
	}
	if err := s.store.UpdateShipment(ctx, shipment); err != nil {
		return store.Shipment{}, err
	}
	if err := s.recordAudit(ctx, actor, "Tolerance Override",
		"Overrode "+field+" tolerance check: "+reason, shipment.ID); err != nil {
		return store.Shipment{}, err
	}
	return shipment, nil
}

// Search

func (s *Service) Search(ctx context.Context, text, filterType, shipmentID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.search.Search(search.Query{
		Text:             text,
		FilterType:       search.ResultType(filterType),
		FilterShipmentID: shipmentID,
		Limit:            limit,
		Offset:           offset,
	}), nil
}

func (s *Service) indexShipment(shipment store.Shipment) {
	if s.search == nil {
		return
	}
	s.search.IndexShipment(search.ShipmentRecord{
		ID:           shipment.ID,
		VesselName:   shipment.VesselName,
		VoyageNumber: shipment.VoyageNumber,
		Status:       string(shipment.Status),
	})
}

func (s *Service) indexDocument(doc store.Document) {
	if s.search == nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:           doc.ID,
		FileName:     doc.FileName,
		DocumentType: doc.DocumentType,
		ShipmentID:   doc.ShipmentID,
		Status:       doc.ProcessingStatus,
	})
}

// recordAudit appends a hash-chained trail entry and mirrors it into the
// search index. The first related id is the owning shipment.
func (s *Service) recordAudit(ctx context.Context, actor, action, details string, relatedIDs ...string) error {
	entry, err := s.ledger.AddEntry(ctx, actor, action, details, relatedIDs...)
	if err != nil {
		return err
	}
	if s.search != nil {
		shipmentID := ""
		if len(entry.RelatedIDs) > 0 {
			shipmentID = entry.RelatedIDs[0]
		}
		s.search.IndexAudit(search.AuditRecord{
			ID:         entry.ID,
			Action:     entry.Action,
			Details:    entry.Details,
			ShipmentID: shipmentID,
		})
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
	}
	return err
}
