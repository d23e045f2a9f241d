package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/model"
	"github.com/releves-ma/si-releves/internal/session"
	"github.com/releves-ma/si-releves/internal/store"
)

// Handler carries the dependencies of every route.
type Handler struct {
	store   *store.Store
	session *session.Session
	logger  *zap.Logger
}

// NewHandler creates the route handler set.
func NewHandler(st *store.Store, sess *session.Session, logger *zap.Logger) *Handler {
	return &Handler{store: st, session: sess, logger: logger}
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// ---- auth ----

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "email and password are required")
		return
	}
	au, err := h.session.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			abortError(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, au)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.session.Logout(c.Request.Context()); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	u := h.session.CurrentUser()
	if u == nil {
		abortError(c, http.StatusUnauthorized, "not authenticated")
		return
	}
	c.JSON(http.StatusOK, u)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "currentPassword and newPassword are required")
		return
	}
	err := h.session.ChangePassword(c.Request.Context(), req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, session.ErrWeakPassword):
		abortError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotAuthenticated):
		abortError(c, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, session.ErrInvalidCredentials):
		abortError(c, http.StatusForbidden, "current password is incorrect")
	case err != nil:
		h.logger.Error("password change failed", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal error")
	default:
		c.Status(http.StatusNoContent)
	}
}

// ---- users ----

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context(), model.UserFilters{
		Role:   model.UserRole(c.Query("role")),
		Search: c.Query("search"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.store.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if u == nil {
		abortError(c, http.StatusNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) createUser(c *gin.Context) {
	var req store.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid user payload")
		return
	}
	if req.Role != model.RoleSuperAdmin && req.Role != model.RoleUser {
		abortError(c, http.StatusBadRequest, "role must be SUPERADMIN or USER")
		return
	}
	u, err := h.store.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) updateUser(c *gin.Context) {
	var patch store.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortError(c, http.StatusBadRequest, "invalid user payload")
		return
	}
	u, err := h.store.UpdateUser(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	if u == nil {
		abortError(c, http.StatusNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) resetPassword(c *gin.Context) {
	pw, err := h.store.ResetPassword(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"password": pw})
}

// ---- agents ----

func (h *Handler) listAgents(c *gin.Context) {
	agents, err := h.store.ListAgents(c.Request.Context(), model.AgentFilters{
		DistrictID: c.Query("district"),
		Search:     c.Query("search"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

func (h *Handler) getAgent(c *gin.Context) {
	a, err := h.store.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if a == nil {
		abortError(c, http.StatusNotFound, "agent not found")
		return
	}
	c.JSON(http.StatusOK, a)
}

type updateDistrictRequest struct {
	DistrictID string `json:"districtId" binding:"required"`
}

func (h *Handler) updateAgentDistrict(c *gin.Context) {
	var req updateDistrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "districtId is required")
		return
	}
	a, err := h.store.UpdateAgentDistrict(c.Request.Context(), c.Param("id"), req.DistrictID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if a == nil {
		abortError(c, http.StatusNotFound, "agent not found")
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) agentPerformance(c *gin.Context) {
	series, err := h.store.AgentPerformance(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrAgentNotFound) {
			abortError(c, http.StatusNotFound, "agent not found")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// ---- meters ----

func (h *Handler) listMeters(c *gin.Context) {
	meters, err := h.store.ListMeters(c.Request.Context(), model.MeterFilters{
		DistrictID: c.Query("district"),
		Type:       model.MeterType(c.Query("type")),
		Search:     c.Query("search"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, meters)
}

func (h *Handler) getMeter(c *gin.Context) {
	m, err := h.store.GetMeter(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if m == nil {
		abortError(c, http.StatusNotFound, "meter not found")
		return
	}
	c.JSON(http.StatusOK, m)
}

type createMeterRequest struct {
	Type      model.MeterType `json:"type" binding:"required"`
	AddressID string          `json:"addressId" binding:"required"`
}

func (h *Handler) createMeter(c *gin.Context) {
	var req createMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "type and addressId are required")
		return
	}
	if req.Type != model.MeterWater && req.Type != model.MeterElectricity {
		abortError(c, http.StatusBadRequest, "type must be WATER or ELECTRICITY")
		return
	}
	m, err := h.store.CreateMeter(c.Request.Context(), req.Type, req.AddressID)
	if err != nil {
		if errors.Is(err, store.ErrAddressNotFound) {
			abortError(c, http.StatusBadRequest, "address not found")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) meterHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	history, err := h.store.MeterHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) eligibleAddresses(c *gin.Context) {
	mt := model.MeterType(c.Query("type"))
	if mt != model.MeterWater && mt != model.MeterElectricity {
		abortError(c, http.StatusBadRequest, "type must be WATER or ELECTRICITY")
		return
	}
	addrs, err := h.store.EligibleAddresses(c.Request.Context(), mt, c.Query("district"), c.Query("search"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, addrs)
}

// ---- readings ----

func (h *Handler) listReadings(c *gin.Context) {
	readings, err := h.store.ListReadings(c.Request.Context(), model.ReadingFilters{
		Date:       c.Query("date"),
		DistrictID: c.Query("district"),
		AgentID:    c.Query("agent"),
		ClientID:   c.Query("client"),
		Type:       model.MeterType(c.Query("type")),
		Search:     c.Query("search"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (h *Handler) getReading(c *gin.Context) {
	r, err := h.store.GetReading(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if r == nil {
		abortError(c, http.StatusNotFound, "reading not found")
		return
	}
	c.JSON(http.StatusOK, r)
}

type createReadingRequest struct {
	MeterID  string    `json:"meterId" binding:"required"`
	AgentID  string    `json:"agentId" binding:"required"`
	Date     time.Time `json:"date" binding:"required"`
	NewIndex int       `json:"newIndex"`
	Notes    string    `json:"notes"`
}

func (h *Handler) createReading(c *gin.Context) {
	var req createReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "meterId, agentId and date are required")
		return
	}
	r, err := h.store.AppendReading(c.Request.Context(), store.AppendReadingInput{
		MeterID:  req.MeterID,
		AgentID:  req.AgentID,
		Date:     req.Date,
		NewIndex: req.NewIndex,
		Notes:    req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrMeterNotFound):
			abortError(c, http.StatusBadRequest, "meter not found")
		case errors.Is(err, store.ErrAgentNotFound):
			abortError(c, http.StatusBadRequest, "agent not found")
		case errors.Is(err, store.ErrIndexRegression):
			abortError(c, http.StatusUnprocessableEntity, err.Error())
		default:
			h.fail(c, err)
		}
		return
	}
	c.JSON(http.StatusCreated, r)
}

// ---- reference tables ----

func (h *Handler) listDistricts(c *gin.Context) {
	districts, err := h.store.Districts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, districts)
}

func (h *Handler) listClients(c *gin.Context) {
	clients, err := h.store.Clients(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

func (h *Handler) getClient(c *gin.Context) {
	cl, err := h.store.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if cl == nil {
		abortError(c, http.StatusNotFound, "client not found")
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (h *Handler) getAddress(c *gin.Context) {
	a, err := h.store.GetAddress(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if a == nil {
		abortError(c, http.StatusNotFound, "address not found")
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) listAddresses(c *gin.Context) {
	addrs, err := h.store.Addresses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, addrs)
}

// ---- dashboard ----

func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context(), c.Query("district"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) dashboardAgents(c *gin.Context) {
	counts, err := h.store.ReadingsPerAgent(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) dashboardTrends(c *gin.Context) {
	trends, err := h.store.ConsumptionTrends(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trends)
}

// ---- preferences ----

func (h *Handler) getSidebar(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"collapsed": h.store.SidebarCollapsed(c.Request.Context())})
}

type sidebarRequest struct {
	Collapsed bool `json:"collapsed"`
}

func (h *Handler) setSidebar(c *gin.Context) {
	var req sidebarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "collapsed is required")
		return
	}
	if err := h.store.SetSidebarCollapsed(c.Request.Context(), req.Collapsed); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collapsed": req.Collapsed})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	h.logger.Error("request failed",
		zap.Error(err),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(keyRequestID)),
	)
	abortError(c, http.StatusInternalServerError, "internal error")
}
