package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/services"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// @Summary List Users
// @Description Get a paginated list of users
// @Tags Users
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search query string false "Search by username, real name or dept"
// @Param role query string false "Filter by role"
// @Param status query string false "Filter by status, all for every account"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) Index(c *gin.Context) {
	query := listQuery(c, 20)
	query.Filters["role"] = c.Query("role")

	status := c.Query("status")
	if status == "all" {
		status = ""
	}
	query.Filters["status"] = status

	users, total, err := h.userService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, users[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"users":      responses,
		"pagination": pagination(query, total),
	})
}

// @Summary Create User
// @Description An empty password falls back to the default_password setting
// @Tags Users
// @Accept json
// @Produce json
// @Param request body services.CreateUserInput true "User Data"
// @Success 201 {object} models.UserResponse
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserInput
	if err := BindNestedOrFlat(c, "user", &req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	user, err := h.userService.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.ToResponse()})
}

// @Summary Update User
// @Tags Users
// @Accept json
// @Produce json
// @Param user_id path int true "User ID"
// @Param request body services.UpdateUserInput true "Changed fields"
// @Success 200 {object} models.UserResponse
// @Security BearerAuth
// @Router /users/{user_id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	var req services.UpdateUserInput
	if err := BindNestedOrFlat(c, "user", &req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	user, err := h.userService.Update(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}

// @Summary Toggle User Status
// @Description Activates or deactivates an account
// @Tags Users
// @Produce json
// @Param user_id path int true "User ID"
// @Success 200 {object} models.UserResponse
// @Security BearerAuth
// @Router /users/{user_id}/toggle-status [put]
func (h *UserHandler) ToggleStatus(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	user, err := h.userService.ToggleStatus(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}

// @Summary Reset Password
// @Description Sets the default password and forces a change on next login
// @Tags Users
// @Produce json
// @Param user_id path int true "User ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /users/{user_id}/reset-password [post]
func (h *UserHandler) ResetPassword(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	if err := h.userService.ResetPassword(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "密码已重置为默认密码"})
}
