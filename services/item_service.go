package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"fibo_store/auth"
	"fibo_store/catalog"
	"fibo_store/db"
	"fibo_store/models"
	"fibo_store/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const MaxImageBytes = 5 << 20

var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ItemInput mirrors the admin item form. Specifications is a JSON object string.
type ItemInput struct {
	Name           string `form:"name" validate:"required,max=200"`
	Category       string `form:"category" validate:"max=100"`
	Description    string `form:"description" validate:"max=5000"`
	Quantity       *int   `form:"quantity" validate:"required,min=0"`
	Unit           string `form:"unit" validate:"max=50"`
	Specifications string `form:"specifications"`
}

// Upload is an optional image attached to the form.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

type ItemService struct {
	repo     *db.Repo
	images   storage.ImageStore
	log      *zap.Logger
	validate *validator.Validate
	lowStock int
}

func NewItemService(repo *db.Repo, images storage.ImageStore, lowStockThreshold int, log *zap.Logger) *ItemService {
	if log == nil {
		log = zap.NewNop()
	}
	if lowStockThreshold <= 0 {
		lowStockThreshold = catalog.DefaultLowStockThreshold
	}
	return &ItemService{repo: repo, images: images, log: log, validate: newValidator(), lowStock: lowStockThreshold}
}

func (s *ItemService) LowStockThreshold() int { return s.lowStock }

func (s *ItemService) List(ctx context.Context, f catalog.Filter) ([]models.Item, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Apply(items, f), nil
}

func (s *ItemService) Get(ctx context.Context, id string) (*models.Item, error) {
	if !validID(id) {
		return nil, &NotFoundError{Kind: "item", ID: id}
	}
	it, err := s.repo.FindItemByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "item", ID: id}
	}
	return it, err
}

func (s *ItemService) Categories(ctx context.Context) ([]string, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Categories(items), nil
}

func (s *ItemService) Create(ctx context.Context, actor auth.Principal, in ItemInput, img *Upload) (*models.Item, error) {
	if !actor.IsAdmin() {
		return nil, errAdminOnly
	}
	it := &models.Item{ID: uuid.NewString()}
	if err := s.apply(it, in); err != nil {
		return nil, err
	}

	var uploaded *storage.Object
	if img != nil {
		obj, err := s.putImage(ctx, it.ID, img)
		if err != nil {
			return nil, err
		}
		uploaded = &obj
		it.ImageURL, it.ImageKey = obj.URL, obj.Key
	}

	if err := s.repo.CreateItem(ctx, it); err != nil {
		s.dropImage(ctx, uploaded)
		return nil, err
	}
	s.log.Info("item created", zap.String("item_id", it.ID), zap.String("actor", actor.Email))
	return it, nil
}

// Update replaces every editable field. A new image replaces the old object;
// without one the current image is kept.
func (s *ItemService) Update(ctx context.Context, actor auth.Principal, id string, in ItemInput, img *Upload) (*models.Item, error) {
	if !actor.IsAdmin() {
		return nil, errAdminOnly
	}
	it, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(it, in); err != nil {
		return nil, err
	}

	var uploaded *storage.Object
	oldKey := it.ImageKey
	if img != nil {
		obj, err := s.putImage(ctx, it.ID, img)
		if err != nil {
			return nil, err
		}
		uploaded = &obj
		it.ImageURL, it.ImageKey = obj.URL, obj.Key
	}

	if err := s.repo.UpdateItem(ctx, it); err != nil {
		s.dropImage(ctx, uploaded)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "item", ID: id}
		}
		return nil, err
	}
	if uploaded != nil && oldKey != "" && oldKey != it.ImageKey {
		s.dropImage(ctx, &storage.Object{Key: oldKey})
	}
	s.log.Info("item updated", zap.String("item_id", it.ID), zap.String("actor", actor.Email))
	return it, nil
}

// Delete refuses while any booking, whatever its status, references the item.
func (s *ItemService) Delete(ctx context.Context, actor auth.Principal, id string) error {
	if !actor.IsAdmin() {
		return errAdminOnly
	}
	it, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch err := s.repo.DeleteItem(ctx, id); {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &NotFoundError{Kind: "item", ID: id}
	case errors.Is(err, db.ErrItemInUse):
		return &ConflictError{Reason: "item is referenced by an existing booking"}
	case err != nil:
		return err
	}
	if it.ImageKey != "" {
		s.dropImage(ctx, &storage.Object{Key: it.ImageKey})
	}
	s.log.Info("item deleted", zap.String("item_id", id), zap.String("actor", actor.Email))
	return nil
}

// AdminList is the paged inventory view with held quantities.
func (s *ItemService) AdminList(ctx context.Context, actor auth.Principal, q db.AdminItemsQuery) (*db.PagedAdminItems, error) {
	if !actor.IsAdmin() {
		return nil, errAdminOnly
	}
	q.Threshold = s.lowStock
	return s.repo.ListItemsFiltered(ctx, q)
}

func (s *ItemService) Stats(ctx context.Context, actor auth.Principal) (catalog.Stats, error) {
	if !actor.IsAdmin() {
		return catalog.Stats{}, errAdminOnly
	}
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return catalog.Stats{}, err
	}
	counts, err := s.repo.CountBookingsByStatus(ctx)
	if err != nil {
		return catalog.Stats{}, err
	}
	return catalog.Summarize(items, counts, s.lowStock), nil
}

func (s *ItemService) apply(it *models.Item, in ItemInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := check(s.validate, in); err != nil {
		return err
	}
	specs, err := parseSpecs(in.Specifications)
	if err != nil {
		return err
	}
	it.Name = in.Name
	it.Category = strings.TrimSpace(in.Category)
	if it.Category == "" {
		it.Category = models.DefaultCategory
	}
	it.Unit = strings.TrimSpace(in.Unit)
	if it.Unit == "" {
		it.Unit = models.DefaultUnit
	}
	it.Description = strings.TrimSpace(in.Description)
	it.AvailableQuantity = *in.Quantity
	it.SetSpecs(specs)
	return nil
}

// parseSpecs accepts a JSON object; scalar values are kept as their text.
func parseSpecs(raw string) (models.Specs, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Specs{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, invalid("specifications", "must be a JSON object")
	}
	out := make(models.Specs, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			out[k] = ""
		case map[string]any, []any:
			return nil, invalid("specifications", "values must be plain text or numbers")
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out, nil
}

func (s *ItemService) putImage(ctx context.Context, itemID string, img *Upload) (storage.Object, error) {
	if img.Size > MaxImageBytes {
		return storage.Object{}, invalid("image_file", "must be at most 5 MB")
	}
	body, err := io.ReadAll(io.LimitReader(img.Body, MaxImageBytes+1))
	if err != nil {
		return storage.Object{}, fmt.Errorf("read image: %w", err)
	}
	if len(body) > MaxImageBytes {
		return storage.Object{}, invalid("image_file", "must be at most 5 MB")
	}
	if len(body) == 0 {
		return storage.Object{}, invalid("image_file", "is empty")
	}

	mt := mimetype.Detect(body)
	var ext, ctype string
	for t, e := range imageTypes {
		if mt.Is(t) {
			ext, ctype = e, t
			break
		}
	}
	if ext == "" {
		return storage.Object{}, invalid("image_file", "must be a PNG, JPEG, GIF or WebP image")
	}

	key := fmt.Sprintf("items/%s/%s%s", itemID, uuid.NewString(), ext)
	obj, err := s.images.Put(ctx, key, ctype, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return storage.Object{}, fmt.Errorf("store image: %w", err)
	}
	return obj, nil
}

func (s *ItemService) dropImage(ctx context.Context, obj *storage.Object) {
	if obj == nil || obj.Key == "" {
		return
	}
	if err := s.images.Delete(ctx, obj.Key); err != nil {
		s.log.Warn("delete image", zap.String("key", obj.Key), zap.Error(err))
	}
}
