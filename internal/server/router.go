package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell-hq/inkwell/internal/documents"
	"github.com/inkwell-hq/inkwell/internal/users"
)

const identityContextKey = "inkwell_identity"

var (
	errMissingTokenManager     = errors.New("token manager dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingDocumentsService = errors.New("documents service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the bearer credentials used by both
// the REST and websocket surfaces.
type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP layer to its collaborating services.
type Dependencies struct {
	TokenManager     TokenManager
	UsersService     *users.Service
	DocumentsService *documents.Service
	Realtime         http.Handler
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router for the whole API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.DocumentsService == nil {
		return nil, errMissingDocumentsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		users:     deps.UsersService,
		documents: deps.DocumentsService,
		logger:    logger,
	}

	router.GET("/api/health", handleHealth)
	router.POST("/api/auth/signup", handler.handleSignup)
	router.POST("/api/auth/login", handler.handleLogin)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)
	protected.POST("/documents", handler.handleCreateDocument)
	protected.GET("/documents", handler.handleListDocuments)
	protected.GET("/documents/:id", handler.handleGetDocument)
	protected.POST("/documents/:id/join", handler.handleJoinDocument)
	protected.GET("/documents/:id/versions", handler.handleListVersions)
	protected.POST("/documents/:id/revert/:versionId", handler.handleRevert)

	if deps.Realtime != nil {
		router.GET("/ws", gin.WrapH(deps.Realtime))
	}

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	users     *users.Service
	documents *documents.Service
	logger    *zap.Logger
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type authResponsePayload struct {
	User        userPayload `json:"user"`
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
}

type signupRequestPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.users.Register(c.Request.Context(), request.Name, request.Email, request.Password)
	if errors.Is(err, users.ErrEmailTaken) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_taken"})
		return
	}
	if err != nil {
		h.logger.Error("signup failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	h.respondWithToken(c, http.StatusCreated, account)
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	h.respondWithToken(c, http.StatusOK, account)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, account users.Account) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), account.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(status, authResponsePayload{
		User:        userPayload{ID: account.ID, Name: account.Name, Email: account.Email},
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	account, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, userPayload{ID: account.ID, Name: account.Name, Email: account.Email})
}

type documentPayload struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Owner         string   `json:"owner"`
	Collaborators []string `json:"collaborators"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func toDocumentPayload(doc documents.Document) documentPayload {
	collaborators := doc.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}
	return documentPayload{
		ID:            doc.ID,
		Title:         doc.Title,
		Content:       doc.Content,
		Owner:         doc.OwnerID,
		Collaborators: collaborators,
		CreatedAt:     doc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     doc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type createDocumentPayload struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	account, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// An absent or malformed body is a valid request for an untitled document.
	var request createDocumentPayload
	_ = c.ShouldBindJSON(&request)

	doc, err := h.documents.Create(c.Request.Context(), account.ID, request.Title)
	if err != nil {
		h.logger.Error("document create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	c.JSON(http.StatusCreated, toDocumentPayload(doc))
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	account, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	docs, err := h.documents.ListForUser(c.Request.Context(), account.ID)
	if err != nil {
		h.logger.Error("document list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payloads := make([]documentPayload, 0, len(docs))
	for _, doc := range docs {
		payloads = append(payloads, toDocumentPayload(doc))
	}
	c.JSON(http.StatusOK, payloads)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	account, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"), account.ID)
	if h.respondDocumentError(c, err, "document get failed") {
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(doc))
}

func (h *httpHandler) handleJoinDocument(c *gin.Context) {
	account, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	doc, err := h.documents.AddCollaborator(c.Request.Context(), c.Param("id"), account.ID)
	if h.respondDocumentError(c, err, "document join failed") {
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(doc))
}

type versionPayload struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	SavedBy    string `json:"saved_by"`
	CreatedAt  string `json:"created_at"`
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	if _, ok := identityFromContext(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	versions, err := h.documents.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("version list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payloads := make([]versionPayload, 0, len(versions))
	for _, version := range versions {
		payloads = append(payloads, versionPayload{
			ID:         version.ID,
			DocumentID: version.DocumentID,
			Content:    version.Content,
			SavedBy:    version.SavedBy,
			CreatedAt:  version.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, payloads)
}

func (h *httpHandler) handleRevert(c *gin.Context) {
	account, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	doc, err := h.documents.Revert(c.Request.Context(), c.Param("id"), c.Param("versionId"), account.ID)
	if h.respondDocumentError(c, err, "document revert failed") {
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(doc))
}

// respondDocumentError maps service errors onto HTTP statuses and
// reports whether a response was written.
func (h *httpHandler) respondDocumentError(c *gin.Context, err error, logMessage string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, documents.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_found"})
	case errors.Is(err, documents.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "version_not_found"})
	case errors.Is(err, documents.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
	default:
		h.logger.Error(logMessage, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
	return true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	account, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		h.logger.Warn("token subject lookup failed", zap.Error(err), zap.String("user_id", userID))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(identityContextKey, account)
	c.Next()
}

func identityFromContext(c *gin.Context) (users.Account, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return users.Account{}, false
	}
	account, ok := value.(users.Account)
	return account, ok
}
