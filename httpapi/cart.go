package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/cart"
	"github.com/MrEthical07/shopauth/internal"
)

type cartResponse struct {
	Items []cart.Item `json:"items"`
	Total int64       `json:"total"`
	Count int         `json:"count"`
}

func (s *Server) cartRoutes(r chi.Router) {
	r.Get("/", s.cartIndex)
	r.Get("/Summary", s.cartSummary)
	r.Post("/AddToCart/{id}", s.addToCart)
	r.Post("/RemoveFromCart/{id}", s.removeFromCart)
	r.Post("/UpdateQuantity", s.updateQuantity)
	r.Post("/Clear", s.clearCart)
}

// cartID returns the cart cookie, issuing one when create is set.
func (s *Server) cartID(w http.ResponseWriter, r *http.Request, create bool) (string, error) {
	if id := cookieValue(r, s.cfg.Session.CartCookieName); id != "" {
		return id, nil
	}
	if !create {
		return "", nil
	}
	id, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, s.cookie(s.cfg.Session.CartCookieName, id))
	return id, nil
}

func (s *Server) cartIndex(w http.ResponseWriter, r *http.Request) {
	id, _ := s.cartID(w, r, false)
	if id == "" {
		writeJSON(w, http.StatusOK, cartResponse{Items: []cart.Item{}})
		return
	}
	items, err := s.cart.Items(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := cartResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []cart.Item{}
	}
	for _, it := range items {
		resp.Total += it.Subtotal()
		resp.Count += it.Quantity
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cartSummary(w http.ResponseWriter, r *http.Request) {
	id, _ := s.cartID(w, r, false)
	if id == "" {
		writeJSON(w, http.StatusOK, map[string]int64{"count": 0, "total": 0})
		return
	}
	count, err := s.cart.Count(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.cart.Total(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": int64(count), "total": total})
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Product not found")
		return
	}
	quantity := 1
	if raw := formValue(r, "quantity"); raw != "" {
		if quantity, err = strconv.Atoi(raw); err != nil {
			writeMessage(w, http.StatusBadRequest, "Quantity must be a number")
			return
		}
	}

	id, err := s.cartID(w, r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.cart.Add(r.Context(), id, productID, quantity); err != nil {
		if errors.Is(err, shopauth.ErrProductNotFound) {
			writeMessage(w, http.StatusNotFound, "Product not found")
			return
		}
		s.writeError(w, r, err)
		return
	}
	seeOther(w, r, localRedirect(refererPath(r), "/Cart"))
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		seeOther(w, r, "/Cart")
		return
	}
	if id, _ := s.cartID(w, r, false); id != "" {
		if err := s.cart.Remove(r.Context(), id, itemID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	seeOther(w, r, "/Cart")
}

func (s *Server) updateQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, err1 := strconv.ParseInt(formValue(r, "id"), 10, 64)
	quantity, err2 := strconv.Atoi(formValue(r, "quantity"))
	if err1 != nil || err2 != nil {
		writeMessage(w, http.StatusBadRequest, "Item id and quantity are required")
		return
	}
	if id, _ := s.cartID(w, r, false); id != "" {
		if err := s.cart.UpdateQuantity(r.Context(), id, itemID, quantity); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	seeOther(w, r, "/Cart")
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	if id, _ := s.cartID(w, r, false); id != "" {
		if err := s.cart.Clear(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	seeOther(w, r, "/Cart")
}

// refererPath reduces the Referer header to its path and query.
func refererPath(r *http.Request) string {
	ref := r.Referer()
	if ref == "" {
		return ""
	}
	u, err := r.URL.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) {
		return ""
	}
	return u.RequestURI()
}
