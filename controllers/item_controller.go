package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"fibo_store/app"
	"fibo_store/catalog"
	"fibo_store/db"
	"fibo_store/services"

	"github.com/gin-gonic/gin"
)

type ItemController struct{ *Srv }

func NewItemController(s *Srv) *ItemController { return &ItemController{Srv: s} }

// GET /items?category=&q=
func (ic *ItemController) ListItems(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	items, err := ic.Items.List(ctx, catalog.Filter{Category: c.Query("category"), Query: c.Query("q")})
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (ic *ItemController) GetItem(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	it, err := ic.Items.Get(ctx, c.Param("id"))
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (ic *ItemController) Categories(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	cats, err := ic.Items.Categories(ctx)
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

// POST /items (multipart form, optional image_file)
func (ic *ItemController) CreateItem(c *gin.Context) {
	in, img, done, ok := ic.bindItemForm(c)
	if !ok {
		return
	}
	defer done()
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	it, err := ic.Items.Create(ctx, principal(c), in, img)
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// PUT /items/:id; without image_file the current image is kept.
func (ic *ItemController) UpdateItem(c *gin.Context) {
	in, img, done, ok := ic.bindItemForm(c)
	if !ok {
		return
	}
	defer done()
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	it, err := ic.Items.Update(ctx, principal(c), c.Param("id"), in, img)
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (ic *ItemController) DeleteItem(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	if err := ic.Items.Delete(ctx, principal(c), c.Param("id")); err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"message": "Item deleted"})
}

// GET /admin/items?q=&category=&low_stock=&page=&size=
func (ic *ItemController) AdminListItems(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	low, _ := strconv.ParseBool(c.DefaultQuery("low_stock", "false"))

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	res, err := ic.Items.AdminList(ctx, principal(c), db.AdminItemsQuery{
		Q: c.Query("q"), Category: c.Query("category"), LowStock: low, Page: page, Size: size,
	})
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (ic *ItemController) Stats(c *gin.Context) {
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	st, err := ic.Items.Stats(ctx, principal(c))
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func noop() {}

// bindItemForm reads the form fields and the optional image_file. The returned
// func releases the upload and must be called once the handler is done.
func (ic *ItemController) bindItemForm(c *gin.Context) (services.ItemInput, *services.Upload, func(), bool) {
	var in services.ItemInput
	if err := c.ShouldBind(&in); err != nil {
		badRequest(c, "invalid form: "+err.Error())
		return in, nil, noop, false
	}

	fh, err := c.FormFile("image_file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, noop, true
	}
	if err != nil {
		badRequest(c, "invalid image_file")
		return in, nil, noop, false
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "invalid image_file")
		return in, nil, noop, false
	}
	return in, &services.Upload{Filename: fh.Filename, Size: fh.Size, Body: f}, func() { _ = f.Close() }, true
}
