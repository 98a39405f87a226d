package server

import (
	"context"
	"encoding/json"

	"github.com/franckalain/medtrack/internal/inventory"
)

type medicineRequest struct {
	ID string `json:"id"`
	inventory.MedicineInput
}

func (c *client) sendDashboard(ctx context.Context) {
	d, err := c.server.inventory.Dashboard(ctx)
	if err != nil {
		c.sendError(err)
		return
	}
	_ = c.send("dashboard", d)
}

func (c *client) handleAddMedicine(ctx context.Context, data json.RawMessage) {
	var req medicineRequest
	if err := decodeData(data, &req); err != nil {
		c.sendErrorMessage(kindBadRequest, "invalid medicine data")
		return
	}
	m, err := c.server.inventory.Add(ctx, req.MedicineInput)
	if err != nil {
		c.sendError(err)
		return
	}
	c.log.Info().Str("medicine", m.ID).Msg("medicine added")
	_ = c.send("medicine_saved", m)
	c.sendDashboard(ctx)
}

func (c *client) handleUpdateMedicine(ctx context.Context, data json.RawMessage) {
	var req medicineRequest
	if err := decodeData(data, &req); err != nil {
		c.sendErrorMessage(kindBadRequest, "invalid medicine data")
		return
	}
	m, err := c.server.inventory.Update(ctx, req.ID, req.MedicineInput)
	if err != nil {
		c.sendError(err)
		return
	}
	_ = c.send("medicine_saved", m)
	c.sendDashboard(ctx)
}

func (c *client) handleDeleteMedicine(ctx context.Context, data json.RawMessage) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeData(data, &req); err != nil {
		c.sendErrorMessage(kindBadRequest, "invalid medicine id")
		return
	}
	if err := c.server.inventory.Delete(ctx, req.ID); err != nil {
		c.sendError(err)
		return
	}
	_ = c.send("medicine_deleted", map[string]string{"id": req.ID})
	c.sendDashboard(ctx)
}

func (c *client) handleListScans(ctx context.Context) {
	scans, err := c.server.db.ListCaptureScans(ctx, scanHistoryLimit)
	if err != nil {
		c.sendError(err)
		return
	}
	_ = c.send("scan_history", map[string]any{"items": scans})
}
