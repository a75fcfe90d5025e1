package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/categories"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxFilesPerForm bounds a whole multipart body relative to the per-file limit.
const maxFilesPerForm = 10

type productAdmin interface {
	CreateProduct(ctx context.Context, input product.CreateProductInput) (*product.ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input product.UpdateProductInput) (*product.ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
}

type categoryAdmin interface {
	Create(ctx context.Context, input categories.CreateCategoryInput) (*categories.CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, input categories.UpdateCategoryInput) (*categories.CategoryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// productForm is the decoded multipart product form shared by create and update.
type productForm struct {
	Name        string
	Description string
	Price       decimal.Decimal
	HasDiscount bool
	Discount    decimal.Decimal
	CategoryIDs []uuid.UUID
}

func parseProductForm(form *validators.Form) (productForm, error) {
	out := productForm{
		Name:        form.Value("name"),
		Description: form.Value("description"),
		Discount:    decimal.Zero,
	}
	details := map[string]string{}

	if raw := form.Value("price"); raw == "" {
		details["price"] = "is required"
	} else if price, err := decimal.NewFromString(raw); err != nil {
		details["price"] = "must be a decimal number"
	} else {
		out.Price = price
	}
	if raw := form.Value("has_discount"); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			details["has_discount"] = "must be true or false"
		}
		out.HasDiscount = flag
	}
	if raw := form.Value("discount"); raw != "" {
		discount, err := decimal.NewFromString(raw)
		if err != nil {
			details["discount"] = "must be a decimal number"
		}
		out.Discount = discount
	}
	for _, raw := range form.Values("category_ids") {
		id, err := uuid.Parse(raw)
		if err != nil {
			details["category_ids"] = "must contain valid ids"
			break
		}
		out.CategoryIDs = append(out.CategoryIDs, id)
	}

	if len(details) > 0 {
		return productForm{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid product form").WithDetails(details)
	}
	return out, nil
}

func AdminCreateProduct(svc productAdmin, media config.MediaConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product service"))
			return
		}
		form, err := validators.ParseMultipart(w, r, media.MaxUploadBytes()*maxFilesPerForm)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer form.Close()

		fields, err := parseProductForm(form)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		uploads, err := form.Uploads("images")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.CreateProduct(r.Context(), product.CreateProductInput{
			Name:        fields.Name,
			Description: fields.Description,
			Price:       fields.Price,
			HasDiscount: fields.HasDiscount,
			Discount:    fields.Discount,
			CategoryIDs: fields.CategoryIDs,
			Images:      uploads,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// AdminUpdateProduct replaces the product fields. Images are only replaced
// when the form carries new files.
func AdminUpdateProduct(svc productAdmin, media config.MediaConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product service"))
			return
		}
		productID, err := validators.ParsePathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		form, err := validators.ParseMultipart(w, r, media.MaxUploadBytes()*maxFilesPerForm)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer form.Close()

		fields, err := parseProductForm(form)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		uploads, err := form.Uploads("images")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.UpdateProduct(r.Context(), productID, product.UpdateProductInput{
			Name:        fields.Name,
			Description: fields.Description,
			Price:       fields.Price,
			HasDiscount: fields.HasDiscount,
			Discount:    fields.Discount,
			CategoryIDs: fields.CategoryIDs,
			Images:      uploads,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func AdminDeleteProduct(svc productAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product service"))
			return
		}
		productID, err := validators.ParsePathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteProduct(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func AdminCreateCategory(svc categoryAdmin, media config.MediaConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		form, err := validators.ParseMultipart(w, r, media.MaxUploadBytes())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer form.Close()

		image, err := form.Upload("image")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Create(r.Context(), categories.CreateCategoryInput{Name: form.Value("name"), Image: image})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func AdminUpdateCategory(svc categoryAdmin, media config.MediaConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		categoryID, err := validators.ParsePathUUID(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		form, err := validators.ParseMultipart(w, r, media.MaxUploadBytes())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer form.Close()

		image, err := form.Upload("image")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Update(r.Context(), categoryID, categories.UpdateCategoryInput{Name: form.Value("name"), Image: image})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func AdminDeleteCategory(svc categoryAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		categoryID, err := validators.ParsePathUUID(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), categoryID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
