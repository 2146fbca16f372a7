package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/vending-machine/vending"
)

// MachineUseCaseInterface define a interface para o use case
type MachineUseCaseInterface interface {
	Products(ctx context.Context) []vending.Product
	Inventory(ctx context.Context) vending.Coins
	Deposit(ctx context.Context, coins []int) (vending.Coins, error)
	Purchase(ctx context.Context, req PurchaseRequest) (*Sale, error)
	StartPurchaseSaga(ctx context.Context, req PurchaseRequest) (string, string, error)
	GetSale(ctx context.Context, id string) (*Sale, error)
	CreateSale(ctx context.Context, req SagaActionRequest) error
	DispenseSale(ctx context.Context, req SagaActionRequest) error
	RefundSale(ctx context.Context, req SagaActionRequest) error
	CompleteSale(ctx context.Context, req SagaActionRequest) error
	CompensateSale(ctx context.Context, req SagaActionRequest) error
}

// MachineHandler contém os handlers HTTP
type MachineHandler struct {
	useCase     MachineUseCaseInterface
	tracer      trace.Tracer
	serviceName string
}

// NewMachineHandler cria uma nova instância de MachineHandler
func NewMachineHandler(useCase MachineUseCaseInterface, tracer trace.Tracer, serviceName string) *MachineHandler {
	return &MachineHandler{
		useCase:     useCase,
		tracer:      tracer,
		serviceName: serviceName,
	}
}

func newRouter(h *MachineHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(h.serviceName))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.GET("/products", h.ListProducts)
	api.GET("/inventory", h.GetInventory)
	api.POST("/coins", h.DepositCoins)
	api.POST("/purchases", h.Purchase)
	api.POST("/purchases/saga", h.PurchaseSaga)
	api.GET("/sales/:id", h.GetSale)

	// SAGA action endpoints
	api.POST("/sales/create", h.CreateSale)
	api.POST("/sales/compensate", h.CompensateSale)
	api.POST("/sales/complete", h.CompleteSale)
	api.POST("/machine/dispense", h.DispenseSale)
	api.POST("/machine/refund", h.RefundSale)

	return r
}

func (h *MachineHandler) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.useCase.Products(c.Request.Context())})
}

func (h *MachineHandler) GetInventory(c *gin.Context) {
	inventory := h.useCase.Inventory(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"coins": inventory,
		"total": inventory.Total(),
	})
}

// DepositCoins carrega moedas na máquina
func (h *MachineHandler) DepositCoins(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inventory, err := h.useCase.Deposit(c.Request.Context(), req.Coins)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"coins": inventory,
		"total": inventory.Total(),
	})
}

// Purchase executa uma compra síncrona
func (h *MachineHandler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sale, err := h.useCase.Purchase(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPurchaseResponse(sale))
}

// PurchaseSaga inicia uma transação SAGA para uma compra
func (h *MachineHandler) PurchaseSaga(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "purchase_saga")
	defer span.End()

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.Int("product_id", req.ProductID),
		attribute.Int("coins", len(req.Coins)),
	)

	ctxDTM, spanDTM := h.tracer.Start(ctx, "dtm.orchestration")
	spanDTM.SetAttributes(attribute.String("component", "dtm-coordinator"))

	orderID, gid, err := h.useCase.StartPurchaseSaga(ctxDTM, req)
	if err != nil {
		spanDTM.RecordError(err)
		spanDTM.End()
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	spanDTM.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("dtm_gid", gid),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"order_id": orderID,
		"saga_gid": gid,
		"message":  "Purchase SAGA initiated successfully",
	})
}

func (h *MachineHandler) GetSale(c *gin.Context) {
	sale, err := h.useCase.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// CreateSale é um endpoint SAGA para registrar a venda
func (h *MachineHandler) CreateSale(c *gin.Context) {
	h.sagaAction(c, "create_sale", h.useCase.CreateSale)
}

// CompensateSale compensa a criação da venda (marca como rejeitada)
func (h *MachineHandler) CompensateSale(c *gin.Context) {
	h.sagaCompensation(c, "compensate_sale", h.useCase.CompensateSale)
}

// CompleteSale marca a venda como concluída
func (h *MachineHandler) CompleteSale(c *gin.Context) {
	h.sagaAction(c, "complete_sale", h.useCase.CompleteSale)
}

// DispenseSale é o endpoint SAGA que executa a compra no motor
func (h *MachineHandler) DispenseSale(c *gin.Context) {
	h.sagaAction(c, "dispense", h.useCase.DispenseSale)
}

// RefundSale compensa a dispensa devolvendo as moedas
func (h *MachineHandler) RefundSale(c *gin.Context) {
	h.sagaCompensation(c, "refund", h.useCase.RefundSale)
}

// HealthCheck verifica a saúde do serviço
func (h *MachineHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// sagaAction binds the branch payload and maps a business rejection to the
// DTM failure result so the saga rolls back instead of retrying.
func (h *MachineHandler) sagaAction(c *gin.Context, operation string, action func(context.Context, SagaActionRequest) error) {
	h.runBranch(c, operation, action, true)
}

// sagaCompensation never reports FAILURE: DTM cannot roll back a
// compensation, so every error goes down the retry path.
func (h *MachineHandler) sagaCompensation(c *gin.Context, operation string, action func(context.Context, SagaActionRequest) error) {
	h.runBranch(c, operation, action, false)
}

func (h *MachineHandler) runBranch(c *gin.Context, operation string, action func(context.Context, SagaActionRequest) error, mayFail bool) {
	var req SagaActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := getOrStartSpanFromPayload(c.Request.Context(), operation, req)
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", req.OrderID),
		attribute.Int("product_id", req.ProductID),
		attribute.String("trace_id", req.TraceID),
	)

	if err := action(ctx, req); err != nil {
		span.RecordError(err)
		reason := vending.Reason(err)
		if mayFail && reason != "" {
			c.JSON(http.StatusConflict, gin.H{
				"dtm_result": dtmcli.ResultFailure,
				"reason":     reason,
				"error":      err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"reason": reason,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess})
}

func writeError(c *gin.Context, err error) {
	if reason := vending.Reason(err); reason != "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  err.Error(),
			"reason": reason,
		})
		return
	}
	if errors.Is(err, ErrSaleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
