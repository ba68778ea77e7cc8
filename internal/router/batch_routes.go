package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/access"
	"github.com/iliyamo/pharmatrace/internal/handler"
	"github.com/iliyamo/pharmatrace/internal/middleware"
)

// RegisterBatches registers the batch lifecycle and document endpoints. Batch
// reads need any valid credential; mutations are gated by the access policy and
// ownership is checked by the service. Document downloads are public and
// cached: a ref is the digest of the bytes, so a cached body never goes stale.
func RegisterBatches(e *echo.Echo, b *handler.BatchHandler, d *handler.DocumentHandler, ch Chain) {
	g := e.Group("/v1", ch.Authn, ch.limit())

	g.POST("/batches", b.Mint, middleware.Require(ch.Guard, access.OpMintBatch))
	g.GET("/batches/:id", b.Get)
	g.GET("/batches/:id/history", b.History)
	g.POST("/batches/:id/transfer", b.Transfer, middleware.Require(ch.Guard, access.OpTransferBatch))
	g.POST("/batches/:id/status", b.UpdateStatus, middleware.Require(ch.Guard, access.OpUpdateStatus))
	g.POST("/batches/:id/recall", b.Recall, middleware.Require(ch.Guard, access.OpRecallBatch))

	g.POST("/documents", d.Upload, middleware.Require(ch.Guard, access.OpUploadDocument))
	e.GET("/v1/documents/:ref", d.Get, ch.limit(), ch.cache())
}

// RegisterVerify registers the public verification endpoints. They always
// read the ledger so a recall is visible immediately.
func RegisterVerify(e *echo.Echo, v *handler.VerifyHandler, ch Chain) {
	g := e.Group("/v1/verify", ch.limit())
	g.GET("/:fingerprint", v.ByFingerprint)
	g.POST("/qr", v.Payload)
}
