package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/metrics/export/prometheus"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/otp"
)

const maxBodyBytes = 1 << 16

type api struct {
	engine *authgate.Engine
	log    log.FieldLogger
}

func newRouter(engine *authgate.Engine, limiter middleware.Limiter, logger log.FieldLogger) http.Handler {
	a := &api{engine: engine, log: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(a.requestLog)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", prometheus.New(engine).Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ClientInfo)
		r.With(middleware.Throttle(limiter, "login", logger)).Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.Post("/logout", a.logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(engine))
		r.Get("/me", a.me)
		r.With(middleware.Throttle(limiter, "otp", logger)).Post("/otp/request", a.requestOTP)
		r.Post("/otp/verify", a.verifyOTP)
		r.Get("/sessions", a.listSessions)
		r.Delete("/sessions/{id}", a.endSession)
		r.Post("/logout/all", a.logoutAll)
		r.Get("/devices", a.listDevices)
		r.With(middleware.RequireOTP(engine, "trust_device")).Post("/devices/{id}/trust", a.trustDevice)
		r.Delete("/devices/{id}", a.removeDevice)
	})
	return r
}

func (a *api) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": chimw.GetReqID(r.Context()),
		}).Debug("authgate: request")
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Code: "bad_request", Message: "malformed JSON body"})
		return false
	}
	return true
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Ping(r.Context()); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Identifier string     `json:"identifier"`
	Password   string     `json:"password"`
	OTPCode    string     `json:"otp_code,omitempty"`
	OTPMethod  otp.Method `json:"otp_method,omitempty"`
}

type tokensResponse struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	IDToken       string    `json:"id_token,omitempty"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at,omitempty"`
}

type challengeResponse struct {
	ChallengeID string     `json:"challenge_id"`
	Method      otp.Method `json:"method"`
	Purpose     string     `json:"purpose"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Delivered   bool       `json:"delivered"`
}

type loginResponse struct {
	Outcome          authgate.LoginOutcome `json:"outcome"`
	UserID           string                `json:"user_id"`
	SessionID        string                `json:"session_id,omitempty"`
	DeviceID         string                `json:"device_id,omitempty"`
	Reasons          []string              `json:"reasons,omitempty"`
	AvailableMethods []otp.Method          `json:"available_methods,omitempty"`
	Challenge        *challengeResponse    `json:"challenge,omitempty"`
	Tokens           *tokensResponse       `json:"tokens,omitempty"`
	RiskScore        int                   `json:"risk_score"`
}

func toChallenge(c *authgate.ChallengeResult) *challengeResponse {
	if c == nil {
		return nil
	}
	return &challengeResponse{
		ChallengeID: c.ChallengeID,
		Method:      c.Method,
		Purpose:     c.Purpose,
		ExpiresAt:   c.ExpiresAt,
		Delivered:   c.DeliveryErr == nil,
	}
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.engine.Login(r.Context(), authgate.LoginRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		OTPCode:    req.OTPCode,
		OTPMethod:  req.OTPMethod,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	out := loginResponse{
		Outcome:          res.Outcome,
		UserID:           res.UserID,
		SessionID:        res.SessionID,
		DeviceID:         res.DeviceID,
		Reasons:          res.Reasons,
		AvailableMethods: res.AvailableMethods,
		Challenge:        toChallenge(res.Challenge),
		RiskScore:        res.Risk.Score,
	}
	status := http.StatusAccepted
	if res.Tokens != nil {
		status = http.StatusOK
		out.Tokens = &tokensResponse{
			AccessToken:   res.Tokens.AccessToken,
			RefreshToken:  res.Tokens.RefreshToken,
			IDToken:       res.Tokens.IDToken,
			AccessExpiry:  res.Tokens.AccessExpiry,
			RefreshExpiry: res.Tokens.RefreshExpiry,
		}
	}
	middleware.WriteJSON(w, status, out)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.engine.Refresh(r.Context(), req.Token)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tokensResponse{AccessToken: res.AccessToken, AccessExpiry: res.AccessExpiry})
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.engine.Logout(r.Context(), req.Token); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func principal(w http.ResponseWriter, r *http.Request) (*authgate.AuthResult, bool) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, authgate.ErrTokenInvalid)
	}
	return res, ok
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     res.User.UserID,
		"email":       res.User.Email,
		"role":        res.User.Role,
		"permissions": a.engine.RolePermissions(res.User.Role),
		"session_id":  res.SessionID,
		"device_id":   res.DeviceID,
		"risk_level":  res.Risk.Level,
	})
}

type otpRequest struct {
	Purpose string     `json:"purpose"`
	Method  otp.Method `json:"method,omitempty"`
	Code    string     `json:"code,omitempty"`
}

func (a *api) requestOTP(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	var req otpRequest
	if !decode(w, r, &req) {
		return
	}
	challenge, err := a.engine.RequestOTP(r.Context(), res.User.UserID, req.Purpose, req.Method)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if challenge.DeliveryErr != nil {
		a.log.WithError(challenge.DeliveryErr).WithField("user_id", res.User.UserID).Warn("authgate: otp delivery failed")
	}
	middleware.WriteJSON(w, http.StatusAccepted, toChallenge(challenge))
}

func (a *api) verifyOTP(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	var req otpRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.engine.VerifyOTP(r.Context(), res.User.UserID, req.Purpose, req.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	sessions, err := a.engine.ListSessions(r.Context(), res.User.UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sessions)
}

func (a *api) endSession(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.engine.EndSession(r.Context(), res.User.UserID, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.engine.LogoutAll(r.Context(), res.User.UserID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listDevices(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	devices, err := a.engine.ListDevices(r.Context(), res.User.UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, devices)
}

func (a *api) trustDevice(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	d, err := a.engine.TrustDevice(r.Context(), res.User.UserID, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, d)
}

func (a *api) removeDevice(w http.ResponseWriter, r *http.Request) {
	res, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.engine.RemoveDevice(r.Context(), res.User.UserID, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
