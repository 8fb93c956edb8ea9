// Package api mounts the public resource operations under a chi
// sub-router, the same router-mounting idiom the control-plane teacher
// uses to compose its customer and instance routers under one root.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/engine"
	"github.com/coralcp/dbaas/health"
	"github.com/coralcp/dbaas/hostinfo"
	"github.com/coralcp/dbaas/instance"
	"github.com/coralcp/dbaas/metrics"
	"github.com/coralcp/dbaas/permission"
	"github.com/coralcp/dbaas/response"
	"github.com/coralcp/dbaas/sku"
	"github.com/coralcp/dbaas/snapshot"
)

// Options bundles every collaborator the router calls into. Every field
// except Permission is required; NewService rejects a nil one the way the
// teacher's service constructors do, and a nil Permission falls back to
// permission.AllowAll.
type Options struct {
	Instances  *instance.Service
	Health     *health.Monitor
	Metrics    *metrics.Sampler
	Snapshots  *snapshot.Service
	HostInfo   *hostinfo.Reporter
	Permission permission.Checker
	Logger     *zap.Logger
}

// Service is the public API router.
type Service struct {
	Options
	validate *validator.Validate
}

func NewService(opt Options) (*Service, error) {
	if opt.Instances == nil {
		return nil, fmt.Errorf("api: nil Instances service is invalid")
	}
	if opt.Health == nil {
		return nil, fmt.Errorf("api: nil Health monitor is invalid")
	}
	if opt.Metrics == nil {
		return nil, fmt.Errorf("api: nil Metrics sampler is invalid")
	}
	if opt.Snapshots == nil {
		return nil, fmt.Errorf("api: nil Snapshots service is invalid")
	}
	if opt.HostInfo == nil {
		return nil, fmt.Errorf("api: nil HostInfo reporter is invalid")
	}
	if opt.Permission == nil {
		opt.Permission = permission.AllowAll
	}
	if opt.Logger == nil {
		return nil, fmt.Errorf("api: nil Logger is invalid")
	}
	return &Service{Options: opt, validate: validator.New()}, nil
}

// require gates a handler behind a permission, writing 403 and short
// circuiting the chain when the checker denies it. subject is read from
// the request context under subjectContextKey, left for the embedding
// host to populate via its own authentication middleware.
type subjectContextKeyType struct{}

var subjectContextKey = subjectContextKeyType{}

// WithSubject stores the caller identity the host's authentication
// middleware has already resolved, so permission checks downstream can
// read it back out.
func WithSubject(ctx context.Context, subject interface{}) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

func (s *Service) require(perm permission.Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.Context().Value(subjectContextKey)
		if !s.Permission(perm, subject) {
			response.Write(w, s.Logger, response.ErrForbidden())
			return
		}
		next(w, r)
	}
}

// Router returns the routes under the resource surface named in the
// external interfaces section.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/engines", s.listEngines)
	r.Get("/skus", s.listSkus)
	r.Get("/host", s.hostCapacity)

	r.Get("/instances", s.require(permission.Read, s.listInstances))
	r.Post("/instances", s.require(permission.Write, s.createInstance))
	r.Get("/instances/{id}", s.require(permission.Read, s.getInstance))
	r.Post("/instances/{id}/start", s.require(permission.Write, s.startInstance))
	r.Post("/instances/{id}/stop", s.require(permission.Write, s.stopInstance))
	r.Post("/instances/{id}/restart", s.require(permission.Write, s.restartInstance))
	r.Delete("/instances/{id}", s.require(permission.Write, s.destroyInstance))

	r.Get("/instances/{id}/logs", s.require(permission.Read, s.instanceLogs))
	r.Get("/instances/{id}/stats", s.require(permission.Read, s.instanceStats))
	r.Get("/instances/{id}/inspect", s.require(permission.Read, s.instanceInspect))
	r.Get("/instances/{id}/metrics", s.require(permission.Read, s.instanceMetrics))
	r.Get("/instances/{id}/health", s.require(permission.Read, s.instanceHealth))

	r.Post("/instances/{id}/snapshot", s.require(permission.Write, s.createSnapshot))
	r.Get("/instances/{id}/snapshots", s.require(permission.Read, s.listSnapshots))
	r.Post("/instances/{id}/restore/{sid}", s.require(permission.Write, s.restoreSnapshot))
	r.Delete("/instances/{id}/snapshots/{sid}", s.require(permission.Write, s.deleteSnapshot))
	r.Get("/instances/{id}/export", s.require(permission.Read, s.exportInstance))

	r.Post("/instances/{id}/credentials/rotate", s.require(permission.Write, s.rotateCredentials))

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Service) listEngines(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, s.Logger, http.StatusOK, engine.List())
}

func (s *Service) listSkus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, s.Logger, http.StatusOK, sku.List())
}

func (s *Service) hostCapacity(w http.ResponseWriter, r *http.Request) {
	cap, err := s.HostInfo.Snapshot(r.Context())
	if err != nil {
		s.Logger.Error("cannot read host capacity", zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, cap)
}

func (s *Service) listInstances(w http.ResponseWriter, r *http.Request) {
	filter := instance.ListFilter{
		Engine: r.URL.Query().Get("engine"),
		Status: r.URL.Query().Get("status"),
	}
	rows, err := s.Instances.Manager.List(r.Context(), filter)
	if err != nil {
		s.Logger.Error("cannot list instances", zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	out := make([]InstanceView, 0, len(rows))
	for _, row := range rows {
		out = append(out, viewFromInstance(row))
	}
	response.JSON(w, s.Logger, http.StatusOK, out)
}

func (s *Service) createInstance(w http.ResponseWriter, r *http.Request) {
	var req CreateSpec
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Write(w, s.Logger, response.ErrInvalidJson())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		response.Write(w, s.Logger, response.ErrValidation().AddMessages(err.Error()))
		return
	}

	inst, err := s.Instances.Lifecycle.Create(r.Context(), instance.CreateRequest{
		Name:           req.Name,
		EngineTag:      req.Engine,
		SkuID:          req.Sku,
		MemoryLimitMB:  req.MemoryLimitMB,
		CPULimit:       req.CPULimit,
		StorageLimitGB: req.StorageLimitGB,
		DatabaseName:   req.DatabaseName,
		ExternalAccess: req.ExternalAccess,
		TLSEnabled:     req.TLSEnabled,
		TLSCert:        req.TLSCert,
		TLSKey:         req.TLSKey,
		VnetName:       req.VnetName,
	})
	if err != nil {
		s.Logger.Error("cannot create instance", zap.Error(err))
		response.Write(w, s.Logger, response.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	response.JSON(w, s.Logger, http.StatusCreated, struct {
		InstanceView
		Password string `json:"password"`
	}{viewFromInstance(*inst), inst.Password})
}

func (s *Service) getInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, err := s.Instances.Manager.GetByID(r.Context(), id)
	if err != nil {
		s.Logger.Error("cannot get instance", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	if inst == nil {
		response.Write(w, s.Logger, response.ErrNotFound())
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, viewFromInstance(*inst))
}

func (s *Service) startInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, err := s.Instances.Lifecycle.Start(r.Context(), id)
	s.writeTransitionResult(w, inst, err)
}

func (s *Service) stopInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, err := s.Instances.Lifecycle.Stop(r.Context(), id, 15*time.Second)
	s.writeTransitionResult(w, inst, err)
}

func (s *Service) restartInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, err := s.Instances.Lifecycle.Restart(r.Context(), id, 15*time.Second)
	s.writeTransitionResult(w, inst, err)
}

func (s *Service) writeTransitionResult(w http.ResponseWriter, inst *db.Instance, err error) {
	if err != nil {
		var invalid *instance.ErrInvalidTransition
		if isInvalidTransition(err, &invalid) {
			response.Write(w, s.Logger, response.ErrConflict().AddMessages(err.Error()))
			return
		}
		s.Logger.Error("instance transition failed", zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, viewFromInstance(*inst))
}

func isInvalidTransition(err error, target **instance.ErrInvalidTransition) bool {
	if e, ok := err.(*instance.ErrInvalidTransition); ok {
		*target = e
		return true
	}
	return false
}

func (s *Service) destroyInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Instances.Lifecycle.Destroy(r.Context(), id); err != nil {
		s.Logger.Error("cannot destroy instance", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, struct{}{})
}

func (s *Service) instanceLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tail := r.URL.Query().Get("tail")
	if tail == "" {
		tail = "200"
	}
	var since, until time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		since, _ = time.Parse(time.RFC3339, v)
	}
	if v := r.URL.Query().Get("until"); v != "" {
		until, _ = time.Parse(time.RFC3339, v)
	}

	rc, err := s.Instances.Logs(r.Context(), id, tail, since, until)
	if err != nil {
		s.Logger.Error("cannot fetch logs", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
		}
		if readErr != nil {
			break
		}
	}
}

func (s *Service) instanceStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, ok := s.Metrics.Current(id)
	if !ok {
		response.Write(w, s.Logger, response.ErrNotFound().AddMessages("no metrics sample yet"))
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, current)
}

func (s *Service) instanceInspect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	payload, err := s.Instances.Inspect(r.Context(), id)
	if err != nil {
		s.Logger.Error("cannot inspect instance", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, payload)
}

func (s *Service) instanceMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, _ := s.Metrics.Current(id)
	history, err := s.Metrics.History(id)
	if err != nil {
		s.Logger.Error("cannot fetch metrics history", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, map[string]interface{}{
		"current": current,
		"history": history,
	})
}

func (s *Service) instanceHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := s.Health.Current(id)
	if !ok {
		response.Write(w, s.Logger, response.ErrNotFound().AddMessages("no health sample yet"))
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Service) createSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, err := s.Instances.Manager.GetByID(r.Context(), id)
	if err != nil || inst == nil {
		response.Write(w, s.Logger, response.ErrNotFound())
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	json.NewDecoder(r.Body).Decode(&req) // absent/malformed body just means no notes

	snap, err := s.Snapshots.Create(r.Context(), *inst, req.Notes)
	if err != nil {
		s.Logger.Error("cannot create snapshot", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	response.JSON(w, s.Logger, http.StatusCreated, snap)
}

func (s *Service) listSnapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := s.Snapshots.List(r.Context(), id)
	if err != nil {
		s.Logger.Error("cannot list snapshots", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, rows)
}

func (s *Service) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sid := chi.URLParam(r, "sid")

	inst, err := s.Instances.Manager.GetByID(r.Context(), id)
	if err != nil || inst == nil {
		response.Write(w, s.Logger, response.ErrNotFound())
		return
	}
	rows, err := s.Snapshots.List(r.Context(), id)
	if err != nil {
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	var target *db.Snapshot
	for i := range rows {
		if rows[i].ID == sid {
			target = &rows[i]
			break
		}
	}
	if target == nil {
		response.Write(w, s.Logger, response.ErrNotFound())
		return
	}

	if err := s.Snapshots.Restore(r.Context(), *inst, *target); err != nil {
		s.Logger.Error("cannot restore snapshot", zap.String("instance_id", id), zap.String("snapshot_id", sid), zap.Error(err))
		response.Write(w, s.Logger, response.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, struct{}{})
}

func (s *Service) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sid := chi.URLParam(r, "sid")

	rows, err := s.Snapshots.List(r.Context(), id)
	if err != nil {
		response.Write(w, s.Logger, response.ErrUnexpected())
		return
	}
	for i := range rows {
		if rows[i].ID == sid {
			if err := s.Snapshots.Delete(r.Context(), rows[i]); err != nil {
				s.Logger.Error("cannot delete snapshot", zap.String("snapshot_id", sid), zap.Error(err))
				response.Write(w, s.Logger, response.ErrUnexpected())
				return
			}
			response.JSON(w, s.Logger, http.StatusOK, struct{}{})
			return
		}
	}
	response.Write(w, s.Logger, response.ErrNotFound())
}

func (s *Service) exportInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reader, filename, err := s.Instances.Export(r.Context(), id)
	if err != nil {
		s.Logger.Error("cannot export instance", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
		}
		if readErr != nil {
			break
		}
	}
}

func (s *Service) rotateCredentials(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	username, password, err := s.Instances.RotateCredentials(r.Context(), id)
	if err != nil {
		s.Logger.Error("cannot rotate credentials", zap.String("instance_id", id), zap.Error(err))
		response.Write(w, s.Logger, response.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	response.JSON(w, s.Logger, http.StatusOK, map[string]string{"username": username, "password": password})
}

// InstanceView is the wire projection of db.Instance. copier moves the
// shared fields across; Password is deliberately left off InstanceView's
// struct so copier has nothing to copy it into, keeping cleartext
// passwords out of every response except Create and RotateCredentials.
type InstanceView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	EngineTag      string    `json:"engine"`
	SkuID          string    `json:"sku"`
	DatabaseName   string    `json:"database_name"`
	Username       string    `json:"username"`
	HostAddress    string    `json:"host"`
	Port           int       `json:"port"`
	Status         db.Status `json:"status"`
	PreviousStatus db.Status `json:"previous_status"`
	LastError      string    `json:"last_error,omitempty"`
	ExternalAccess bool      `json:"external_access"`
	TLSEnabled     bool      `json:"tls_enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func viewFromInstance(inst db.Instance) InstanceView {
	var out InstanceView
	copier.Copy(&out, &inst)
	return out
}

// CreateSpec is the validated request body for POST /instances. MemoryLimitMB,
// CPULimit, and StorageLimitGB only apply when Sku is "custom"; TLSCert/TLSKey
// are raw PEM bytes (base64 over the wire), required together when
// TLSEnabled is set.
type CreateSpec struct {
	Engine         string  `json:"engine" validate:"required"`
	Name           string  `json:"name"`
	DatabaseName   string  `json:"database_name" validate:"required"`
	Sku            string  `json:"sku" validate:"required"`
	MemoryLimitMB  int     `json:"memory_limit_mb,omitempty" validate:"required_if=Sku custom"`
	CPULimit       float64 `json:"cpu_limit,omitempty" validate:"required_if=Sku custom"`
	StorageLimitGB int     `json:"storage_limit_gb,omitempty" validate:"required_if=Sku custom"`
	ExternalAccess bool    `json:"external_access"`
	TLSEnabled     bool    `json:"tls_enabled"`
	TLSCert        []byte  `json:"tls_cert,omitempty" validate:"required_if=TLSEnabled true"`
	TLSKey         []byte  `json:"tls_key,omitempty" validate:"required_if=TLSEnabled true"`
	VnetName       string  `json:"vnet_name"`
}
