package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
)

type cartService interface {
	AddToCart(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID, quantity *int) error
	SetQuantity(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID, quantity *int) error
	RemoveFromCart(ctx context.Context, caller pkgAuth.Caller, productID uuid.UUID) error
	View(ctx context.Context, caller pkgAuth.Caller) (*cart.CartView, error)
}

// Quantity is optional on add; a missing or non-positive value means one.
type addCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  *int      `json:"quantity,omitempty"`
}

type setCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type cartMutation func(r *http.Request, caller pkgAuth.Caller) error

// cartEndpoint applies mutate for the authenticated caller, then answers with
// the cart as it now stands. A nil mutate is a plain read.
func cartEndpoint(svc cartService, logg *logger.Logger, mutate cartMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fail := func(err error) { responses.WriteError(r.Context(), logg, w, err) }
		if svc == nil {
			fail(unavailable("cart service"))
			return
		}
		caller, err := callerFrom(r)
		if err != nil {
			fail(err)
			return
		}
		if mutate != nil {
			if err := mutate(r, caller); err != nil {
				fail(err)
				return
			}
		}
		view, err := svc.View(r.Context(), caller)
		if err != nil {
			fail(err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartFetch(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return cartEndpoint(svc, logg, nil)
}

// CartAddItem adds to the quantity already in the cart for the product.
func CartAddItem(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return cartEndpoint(svc, logg, func(r *http.Request, caller pkgAuth.Caller) error {
		var body addCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		return svc.AddToCart(r.Context(), caller, body.ProductID, body.Quantity)
	})
}

// CartSetItem overwrites the quantity; zero removes the line.
func CartSetItem(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return cartEndpoint(svc, logg, func(r *http.Request, caller pkgAuth.Caller) error {
		productID, err := validators.ParsePathUUID(r, "productId")
		if err != nil {
			return err
		}
		var body setCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		return svc.SetQuantity(r.Context(), caller, productID, body.Quantity)
	})
}

func CartRemoveItem(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return cartEndpoint(svc, logg, func(r *http.Request, caller pkgAuth.Caller) error {
		productID, err := validators.ParsePathUUID(r, "productId")
		if err != nil {
			return err
		}
		return svc.RemoveFromCart(r.Context(), caller, productID)
	})
}
