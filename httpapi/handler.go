package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"agrichain/identity"
	"agrichain/product"
	"agrichain/provenance"
	"agrichain/purchase"
	"agrichain/rating"
	"agrichain/transfer"
)

// TimelineReader serves a product's ordered audit trail. Satisfied by
// provenance.Repository.
type TimelineReader interface {
	ListByProduct(ctx context.Context, productID int64) ([]provenance.Event, error)
}

// Handler is the thin HTTP layer over the protocol services. It holds no
// domain logic: request decoding, identity extraction, and error translation
// only.
type Handler struct {
	identities *identity.Service
	products   *product.Service
	transfers  *transfer.Service
	purchases  *purchase.Service
	ratings    *rating.Service
	timeline   TimelineReader
	logger     *zap.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(
	identities *identity.Service,
	products *product.Service,
	transfers *transfer.Service,
	purchases *purchase.Service,
	ratings *rating.Service,
	timeline TimelineReader,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		identities: identities,
		products:   products,
		transfers:  transfers,
		purchases:  purchases,
		ratings:    ratings,
		timeline:   timeline,
		logger:     logger,
	}
}

// SetupRoutes wires all endpoints. Reads are public; writes require a
// session token.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(loggingMiddleware(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/identities", h.register)
		v1.POST("/sessions", h.login)
		v1.GET("/identities/:handle", h.resolveHandle)
		v1.GET("/ratings/:id", h.averageRating)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/provenance", h.getProvenance)
		v1.GET("/products/:id/transfer-proposal", h.getTransferProposal)
		v1.GET("/products/:id/purchase-proposal", h.getPurchaseProposal)

		authed := v1.Group("", h.authRequired())
		{
			authed.POST("/products", h.createProduct)
			authed.POST("/products/:id/state", h.updateState)
			authed.POST("/products/:id/price", h.setPrice)
			authed.POST("/products/:id/transfer-proposal", h.proposeTransfer)
			authed.POST("/products/:id/transfer-proposal/confirm", h.confirmTransfer)
			authed.POST("/products/:id/purchase-proposal", h.proposePurchase)
			authed.POST("/products/:id/purchase-proposal/confirm", h.confirmPurchase)
			authed.POST("/products/:id/purchase-proposal/reject", h.rejectPurchase)
			authed.POST("/products/:id/purchase-proposal/cancel", h.cancelPurchase)
			authed.POST("/products/:id/ratings", h.rate)
		}
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) register(c *gin.Context) {
	var req identity.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ident, err := h.identities.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, identityResponse(*ident))
}

func (h *Handler) login(c *gin.Context) {
	var req identity.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.identities.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    result.Token,
		"identity": identityResponse(result.Identity),
	})
}

func (h *Handler) resolveHandle(c *gin.Context) {
	ident, err := h.identities.ResolveHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identityResponse(*ident))
}

func (h *Handler) averageRating(c *gin.Context) {
	avg, count, err := h.identities.AverageRating(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, identity.ErrUnrated) {
			c.JSON(http.StatusOK, gin.H{"unrated": true, "count": 0})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"average": avg, "count": count})
}

type createProductRequest struct {
	Name         string `json:"name"`
	Origin       string `json:"origin"`
	Quantity     int64  `json:"quantity"`
	Unit         string `json:"unit"`
	PricePerUnit int64  `json:"price_per_unit"`
	HarvestedAt  int64  `json:"harvested_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

func (h *Handler) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := h.products.Create(c.Request.Context(), callerRole(c), product.CreateParams{
		ActorID:      c.GetString(ctxIdentityID),
		Name:         req.Name,
		Origin:       req.Origin,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		PricePerUnit: req.PricePerUnit,
		HarvestedAt:  time.Unix(req.HarvestedAt, 0).UTC(),
		ExpiresAt:    time.Unix(req.ExpiresAt, 0).UTC(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, productResponse(*p))
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(products))
	for _, p := range products {
		out = append(out, productResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	p, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, productResponse(*p))
}

func (h *Handler) getProvenance(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	events, err := h.timeline.ListByProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse(ev))
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

type updateStateRequest struct {
	State uint8 `json:"state"`
}

func (h *Handler) updateState(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var req updateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := h.products.UpdateState(c.Request.Context(), c.GetString(ctxIdentityID), id, product.State(req.State))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, productResponse(*p))
}

type setPriceRequest struct {
	MarkupPercent int64 `json:"markup_percent"`
}

func (h *Handler) setPrice(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := h.products.SetPriceWithMarkup(c.Request.Context(), c.GetString(ctxIdentityID), id, req.MarkupPercent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, productResponse(*p))
}

type proposeTransferRequest struct {
	TargetHandle string `json:"target_handle"`
}

func (h *Handler) proposeTransfer(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var req proposeTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pr, err := h.transfers.Propose(c.Request.Context(), c.GetString(ctxIdentityID), id, req.TargetHandle)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transferResponse(*pr))
}

func (h *Handler) confirmTransfer(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	pr, err := h.transfers.TargetConfirm(c.Request.Context(), c.GetString(ctxIdentityID), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transferResponse(*pr))
}

func (h *Handler) getTransferProposal(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	pr, err := h.transfers.GetProposal(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transferResponse(*pr))
}

type proposePurchaseRequest struct {
	Payment int64 `json:"payment"`
}

func (h *Handler) proposePurchase(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var req proposePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pr, err := h.purchases.Propose(c.Request.Context(), c.GetString(ctxIdentityID), id, req.Payment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchaseResponse(*pr))
}

func (h *Handler) confirmPurchase(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	pr, err := h.purchases.SellerConfirm(c.Request.Context(), c.GetString(ctxIdentityID), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchaseResponse(*pr))
}

func (h *Handler) rejectPurchase(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	pr, err := h.purchases.SellerReject(c.Request.Context(), c.GetString(ctxIdentityID), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchaseResponse(*pr))
}

func (h *Handler) cancelPurchase(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	pr, err := h.purchases.Cancel(c.Request.Context(), c.GetString(ctxIdentityID), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchaseResponse(*pr))
}

func (h *Handler) getPurchaseProposal(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	pr, err := h.purchases.GetProposal(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchaseResponse(*pr))
}

type rateRequest struct {
	Role  string `json:"role"`
	Score int    `json:"score"`
}

func (h *Handler) rate(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.ratings.Rate(c.Request.Context(), c.GetString(ctxIdentityID), id, identity.Role(req.Role), req.Score)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rated": true})
}

func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return 0, false
	}
	return id, true
}

func callerRole(c *gin.Context) identity.Role {
	return identity.Role(c.GetString(ctxRole))
}

func identityResponse(ident identity.Identity) gin.H {
	return gin.H{
		"id":     ident.ID,
		"handle": ident.Handle,
		"role":   ident.Role,
	}
}

func productResponse(p product.Product) gin.H {
	return gin.H{
		"id":               p.ID,
		"name":             p.Name,
		"origin":           p.Origin,
		"quantity":         p.Quantity,
		"unit":             p.Unit,
		"price_per_unit":   p.PricePerUnit,
		"harvested_at":     p.HarvestedAt.Unix(),
		"expires_at":       p.ExpiresAt.Unix(),
		"state":            uint8(p.State),
		"state_name":       p.State.String(),
		"owner":            p.OwnerID,
		"producer":         p.ProducerID,
		"wholesaler":       p.WholesalerID,
		"retailer":         p.RetailerID,
		"producer_rated":   p.ProducerRated,
		"wholesaler_rated": p.WholesalerRated,
		"retailer_rated":   p.RetailerRated,
	}
}

func transferResponse(pr transfer.Proposal) gin.H {
	return gin.H{
		"id":                 pr.ID,
		"product_id":         pr.ProductID,
		"proposer":           pr.ProposerID,
		"target":             pr.TargetID,
		"proposer_confirmed": pr.ProposerConfirmed,
		"target_confirmed":   pr.TargetConfirmed,
		"executed":           pr.Executed,
	}
}

func purchaseResponse(pr purchase.Proposal) gin.H {
	return gin.H{
		"id":               pr.ID,
		"product_id":       pr.ProductID,
		"buyer":            pr.BuyerID,
		"seller":           pr.SellerID,
		"leg":              pr.Leg,
		"amount":           pr.Amount,
		"seller_confirmed": pr.SellerConfirmed,
		"executed":         pr.Executed,
		"cancelled":        pr.Cancelled,
	}
}

func eventResponse(ev provenance.Event) gin.H {
	return gin.H{
		"seq":     ev.Seq,
		"type":    ev.Type,
		"actor":   ev.ActorID,
		"payload": json.RawMessage(ev.Payload),
		"ts":      ev.CreatedAt.Unix(),
	}
}
