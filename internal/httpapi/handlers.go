package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tabula/internal/config"
	"tabula/internal/core/apperror"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/object"
	"tabula/internal/register"
	"tabula/internal/storage"
)

type handlers struct {
	gw       storage.Gateway
	registry *schema.Registry
	factory  *object.Factory
	locks    *object.LockManager
	reposter *register.Reposter
	engine   config.EngineConfig
}

func newHandlers(cfg RouterConfig) *handlers {
	return &handlers{
		gw:       cfg.Gateway,
		registry: cfg.Registry,
		factory:  cfg.Factory,
		locks:    cfg.Locks,
		reposter: cfg.Reposter,
		engine:   cfg.Engine,
	}
}

func (h *handlers) live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) ready(c *gin.Context) {
	// A cheap storage round trip doubles as the readiness probe.
	if _, err := h.gw.TriggerDepth(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Shared helpers ---

func (h *handlers) pathID(c *gin.Context) (id.ID, bool) {
	oid, err := id.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid identifier").WithDetail("id", c.Param("id")))
		return id.Nil(), false
	}
	return oid, true
}

func qualified(kind basis.Kind, typeName string) string {
	return string(kind) + "." + typeName
}

func (h *handlers) listFilter(c *gin.Context) storage.ListFilter {
	f := storage.ListFilter{
		IncludeDeleted: c.Query("include_deleted") == "true",
		Search:         c.Query("search"),
		Limit:          h.engine.PageSize,
	}
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		f.FromDate = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		f.ToDate = &to
	}
	var page struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if c.ShouldBindQuery(&page) == nil {
		if page.Limit > 0 {
			f.Limit = page.Limit
		}
		f.Offset = page.Offset
	}
	return f
}

type saveRequest struct {
	Values map[string]any `json:"values" binding:"required"`
}

type markRequest struct {
	Marked bool `json:"marked"`
}

func applyValues(obj object.Persistable, values map[string]any) error {
	for name, v := range values {
		if err := obj.Values().Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// --- Directories ---

func (h *handlers) listDirectories(c *gin.Context) {
	def, ok := h.registry.Get(qualified(basis.KindDirectory, c.Param("type")))
	if !ok {
		_ = c.Error(apperror.NewValidation("unknown directory type").WithDetail("type", c.Param("type")))
		return
	}
	rows, err := h.gw.ListDirectories(c.Request.Context(), def, h.listFilter(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":            r.ID,
			"deletion_mark": r.DeletionMark,
			"values":        r.Values.Map(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *handlers) createDirectory(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	obj, err := h.factory.Directory(qualified(basis.KindDirectory, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	obj.New()
	if err := applyValues(obj, req.Values); err != nil {
		_ = c.Error(err)
		return
	}
	if err := obj.Save(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": obj.ID()})
}

func (h *handlers) readDirectory(c *gin.Context) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	obj, err := h.factory.Directory(qualified(basis.KindDirectory, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	found, err := obj.Read(c.Request.Context(), oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !found {
		_ = c.Error(apperror.NewNotFound(obj.Def().QualifiedName(), oid))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            obj.ID(),
		"deletion_mark": obj.DeletionMark(),
		"version_id":    obj.VersionID(),
		"values":        obj.Values().Map(),
	})
}

func (h *handlers) updateDirectory(c *gin.Context) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	obj, err := h.factory.Directory(qualified(basis.KindDirectory, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	found, err := obj.Read(c.Request.Context(), oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !found {
		_ = c.Error(apperror.NewNotFound(obj.Def().QualifiedName(), oid))
		return
	}
	if err := applyValues(obj, req.Values); err != nil {
		_ = c.Error(err)
		return
	}
	if err := obj.Save(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": obj.ID(), "version_id": obj.VersionID()})
}

func (h *handlers) setDirectoryMark(c *gin.Context) {
	h.setMark(c, basis.KindDirectory)
}

func (h *handlers) deleteDirectory(c *gin.Context) {
	h.deleteObject(c, basis.KindDirectory)
}

func (h *handlers) directoryVersions(c *gin.Context) {
	h.versions(c, basis.KindDirectory)
}

// --- Documents ---

func (h *handlers) listDocuments(c *gin.Context) {
	def, ok := h.registry.Get(qualified(basis.KindDocument, c.Param("type")))
	if !ok {
		_ = c.Error(apperror.NewValidation("unknown document type").WithDetail("type", c.Param("type")))
		return
	}
	filter := h.listFilter(c)
	resp := gin.H{}

	// An anchor id positions the listing on the page carrying that row
	// instead of an explicit offset.
	if raw := c.Query("anchor"); raw != "" {
		anchor, err := id.Parse(raw)
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid anchor").WithDetail("anchor", raw))
			return
		}
		total, err := h.gw.CountObjects(c.Request.Context(), def, filter)
		if err != nil {
			_ = c.Error(err)
			return
		}
		pos, err := h.gw.ObjectOffset(c.Request.Context(), def, filter, anchor)
		if err != nil {
			_ = c.Error(err)
			return
		}
		split := register.SplitToPages(int(total), int(pos), filter.Limit)
		filter.Offset = split.Offset
		resp["page"] = split.Page
		resp["page_count"] = split.PageCount
		resp["offset"] = split.Offset
	}

	rows, err := h.gw.ListDocuments(c.Request.Context(), def, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":            r.ID,
			"deletion_mark": r.DeletionMark,
			"spent":         r.Spent,
			"spend_date":    r.SpendDate,
			"values":        r.Values.Map(),
		})
	}
	resp["items"] = out
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) createDocument(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	doc, err := h.factory.Document(qualified(basis.KindDocument, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	doc.New()
	if err := applyValues(doc, req.Values); err != nil {
		_ = c.Error(err)
		return
	}
	if err := doc.Save(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": doc.ID()})
}

func (h *handlers) readDocument(c *gin.Context) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	doc, err := h.factory.Document(qualified(basis.KindDocument, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	found, err := doc.Read(c.Request.Context(), oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !found {
		_ = c.Error(apperror.NewNotFound(doc.Def().QualifiedName(), oid))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            doc.ID(),
		"deletion_mark": doc.DeletionMark(),
		"spent":         doc.Spent(),
		"spend_date":    doc.SpendDate(),
		"version_id":    doc.VersionID(),
		"values":        doc.Values().Map(),
	})
}

func (h *handlers) updateDocument(c *gin.Context) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	doc, err := h.factory.Document(qualified(basis.KindDocument, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	found, err := doc.Read(c.Request.Context(), oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !found {
		_ = c.Error(apperror.NewNotFound(doc.Def().QualifiedName(), oid))
		return
	}
	if err := applyValues(doc, req.Values); err != nil {
		_ = c.Error(err)
		return
	}
	if err := doc.Save(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": doc.ID(), "version_id": doc.VersionID()})
}

func (h *handlers) spendDocument(c *gin.Context) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	var req struct {
		Spent bool      `json:"spent"`
		Date  time.Time `json:"date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	doc, err := h.factory.Document(qualified(basis.KindDocument, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	found, err := doc.Read(c.Request.Context(), oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !found {
		_ = c.Error(apperror.NewNotFound(doc.Def().QualifiedName(), oid))
		return
	}
	if err := doc.Spend(c.Request.Context(), req.Spent, req.Date); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": doc.ID(), "spent": doc.Spent()})
}

func (h *handlers) setDocumentMark(c *gin.Context) {
	h.setMark(c, basis.KindDocument)
}

func (h *handlers) deleteDocument(c *gin.Context) {
	h.deleteObject(c, basis.KindDocument)
}

func (h *handlers) documentVersions(c *gin.Context) {
	h.versions(c, basis.KindDocument)
}

func (h *handlers) readTablePart(c *gin.Context) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	doc, err := h.factory.Document(qualified(basis.KindDocument, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	part, err := doc.TablePart(c.Param("part"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := part.Read(c.Request.Context(), oid); err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(part.Rows()))
	for _, r := range part.Rows() {
		out = append(out, gin.H{"id": r.ID, "values": r.Values.Map()})
	}
	c.JSON(http.StatusOK, gin.H{"rows": out})
}

func (h *handlers) rewriteTablePart(c *gin.Context) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	var req struct {
		Rows []map[string]any `json:"rows" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	doc, err := h.factory.Document(qualified(basis.KindDocument, c.Param("type")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	found, err := doc.Read(c.Request.Context(), oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !found {
		_ = c.Error(apperror.NewNotFound(doc.Def().QualifiedName(), oid))
		return
	}
	part, err := doc.TablePart(c.Param("part"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	records := make([]schema.Record, 0, len(req.Rows))
	for _, m := range req.Rows {
		records = append(records, schema.RecordFromMap(part.Def().Columns, m))
	}
	if err := part.Rewrite(c.Request.Context(), oid, records); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": len(records)})
}

func (h *handlers) repostDocuments(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	ids := make([]id.ID, 0, len(req.IDs))
	for _, s := range req.IDs {
		oid, err := id.Parse(s)
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid identifier").WithDetail("id", s))
			return
		}
		ids = append(ids, oid)
	}
	result, err := h.reposter.Repost(c.Request.Context(), qualified(basis.KindDocument, c.Param("type")), ids)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed": result.Processed,
		"cancelled": result.Cancelled,
	})
}

// --- Shared object operations ---

func (h *handlers) setMark(c *gin.Context, kind basis.Kind) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}
	obj, err := h.loadObject(c, kind, oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := obj.SetDeletionMark(c.Request.Context(), req.Marked); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": oid, "marked": req.Marked})
}

func (h *handlers) deleteObject(c *gin.Context, kind basis.Kind) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	obj, err := h.loadObject(c, kind, oid)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := obj.Delete(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) loadObject(c *gin.Context, kind basis.Kind, oid id.ID) (object.Persistable, error) {
	name := qualified(kind, c.Param("type"))
	obj, err := h.factory.ForBasis(c.Request.Context(), basis.New(kind, c.Param("type"), oid))
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, apperror.NewNotFound(name, oid)
	}
	return obj, nil
}

func (h *handlers) versions(c *gin.Context, kind basis.Kind) {
	oid, ok := h.pathID(c)
	if !ok {
		return
	}
	b := basis.New(kind, c.Param("type"), oid)
	entries, err := h.gw.VersionsList(c.Request.Context(), b, h.engine.VersionsLimit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		values, err := object.DecodeSnapshot(&e)
		if err != nil {
			_ = c.Error(err)
			return
		}
		out = append(out, gin.H{
			"version_id": e.VersionID,
			"user_id":    e.UserID,
			"op":         e.Op,
			"created_at": e.CreatedAt,
			"values":     values,
		})
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}

// --- Search, registers, locks, triggers ---

func (h *handlers) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		_ = c.Error(apperror.NewValidation("query parameter q is required"))
		return
	}
	matches, err := h.gw.FullTextSearch(c.Request.Context(), q, h.engine.SearchLimit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(matches))
	for _, b := range matches {
		out = append(out, gin.H{"type": b.Type, "id": b.ID})
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}

func (h *handlers) registerBalance(c *gin.Context) {
	def, ok := h.registry.GetRegister(c.Param("name"))
	if !ok {
		_ = c.Error(apperror.NewValidation("unknown register").WithDetail("register", c.Param("name")))
		return
	}
	period, err := time.Parse(time.RFC3339, c.Query("period"))
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid period").WithCause(err))
		return
	}
	balance, err := h.gw.SelectBalance(c.Request.Context(), def, period)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if balance == nil {
		c.JSON(http.StatusOK, gin.H{"register": def.Name, "period": period, "income": gin.H{}, "expense": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"register": balance.Register,
		"period":   balance.Period,
		"income":   balance.Income,
		"expense":  balance.Expense,
	})
}

func (h *handlers) registerMovements(c *gin.Context) {
	def, ok := h.registry.GetRegister(c.Param("name"))
	if !ok {
		_ = c.Error(apperror.NewValidation("unknown register").WithDetail("register", c.Param("name")))
		return
	}
	owner, err := id.Parse(c.Param("owner"))
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid identifier").WithDetail("id", c.Param("owner")))
		return
	}
	movements, err := h.gw.SelectMovements(c.Request.Context(), def, owner)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(movements))
	for _, m := range movements {
		out = append(out, gin.H{
			"id":         m.ID,
			"period":     m.Period,
			"income":     m.Income,
			"owner_id":   m.OwnerID,
			"owner_type": m.OwnerType,
			"values":     m.Values.Map(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"movements": out})
}

func (h *handlers) lockBasis(c *gin.Context) (basis.Basis, bool) {
	oid, err := id.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid identifier").WithDetail("id", c.Param("id")))
		return basis.Basis{}, false
	}
	kind := basis.Kind(c.Param("kind"))
	if kind != basis.KindDirectory && kind != basis.KindDocument {
		_ = c.Error(apperror.NewValidation("invalid kind").WithDetail("kind", c.Param("kind")))
		return basis.Basis{}, false
	}
	return basis.New(kind, c.Param("type"), oid), true
}

func (h *handlers) lockAcquire(c *gin.Context) {
	b, ok := h.lockBasis(c)
	if !ok {
		return
	}
	if err := h.locks.Acquire(c.Request.Context(), b); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": true})
}

func (h *handlers) lockRelease(c *gin.Context) {
	b, ok := h.lockBasis(c)
	if !ok {
		return
	}
	if err := h.locks.Release(c.Request.Context(), b); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) lockInfo(c *gin.Context) {
	b, ok := h.lockBasis(c)
	if !ok {
		return
	}
	info, err := h.locks.Info(c.Request.Context(), b)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if info == nil {
		c.JSON(http.StatusOK, gin.H{"locked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"locked":    true,
		"user_id":   info.UserID,
		"locked_at": info.LockedAt,
	})
}

func (h *handlers) triggerDepth(c *gin.Context) {
	depth, err := h.gw.TriggerDepth(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"depth": depth})
}
