package handlers

import (
	"encoding/json"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

// Money leaves the API in major units ("12.5") as a JSON number.
func amountJSON(minor int64) json.Number {
	return json.Number(domain.FormatAmount(minor))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

type imagePayload struct {
	ID           string `json:"id"`
	Src          string `json:"src"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

func buildImagePayload(img domain.Image) imagePayload {
	return imagePayload{
		ID:           img.ID,
		Src:          img.Src,
		Width:        img.Width,
		Height:       img.Height,
		ResourceType: img.ResourceType,
	}
}

type userPayload struct {
	ID         string       `json:"id"`
	Username   string       `json:"username"`
	Email      string       `json:"email"`
	Role       string       `json:"role"`
	Avatar     imagePayload `json:"avatar"`
	IsVerified bool         `json:"isVerified"`
	VerifiedAt string       `json:"verifiedAt,omitempty"`
	CreatedAt  string       `json:"createdAt"`
	UpdatedAt  string       `json:"updatedAt"`
}

// buildUserPayload never exposes the password hash or recovery tokens.
func buildUserPayload(u domain.User) userPayload {
	return userPayload{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       string(u.Role),
		Avatar:     buildImagePayload(u.Avatar),
		IsVerified: u.IsVerified,
		VerifiedAt: formatTimePtr(u.VerifiedAt),
		CreatedAt:  formatTime(u.CreatedAt),
		UpdatedAt:  formatTime(u.UpdatedAt),
	}
}

type productPayload struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	Company       string         `json:"company"`
	Price         json.Number    `json:"price"`
	Description   string         `json:"description"`
	Colors        []string       `json:"colors"`
	Images        []imagePayload `json:"images"`
	VIP           bool           `json:"vip"`
	Shipping      bool           `json:"shipping"`
	AvgRating     float64        `json:"avgRating"`
	NumOfComments int            `json:"numOfComments"`
	Stock         *int           `json:"stock,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
}

// buildProductPayload renders a product. The catalog listing passes detailed=false, which
// leaves out stock, owner and updatedAt.
func buildProductPayload(p domain.Product, detailed bool) productPayload {
	colors := p.Colors
	if colors == nil {
		colors = []string{}
	}
	images := make([]imagePayload, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, buildImagePayload(img))
	}
	payload := productPayload{
		ID:            p.ID,
		Name:          p.Name,
		Category:      string(p.Category),
		Company:       string(p.Company),
		Price:         amountJSON(p.Price),
		Description:   p.Description,
		Colors:        colors,
		Images:        images,
		VIP:           p.VIP,
		Shipping:      p.Shipping,
		AvgRating:     p.AvgRating,
		NumOfComments: p.NumOfComments,
		CreatedAt:     formatTime(p.CreatedAt),
	}
	if detailed {
		stock := p.Stock
		payload.Stock = &stock
		payload.UserID = p.UserID
		payload.UpdatedAt = formatTime(p.UpdatedAt)
	}
	return payload
}

type reviewPayload struct {
	ID        string `json:"id"`
	Product   string `json:"product"`
	User      string `json:"user"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func buildReviewPayload(r domain.Review) reviewPayload {
	return reviewPayload{
		ID:        r.ID,
		Product:   r.ProductID,
		User:      r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: formatTime(r.CreatedAt),
		UpdatedAt: formatTime(r.UpdatedAt),
	}
}

type orderItemPayload struct {
	Product  string      `json:"product"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Image    string      `json:"image"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	User            string             `json:"user"`
	OrderItems      []orderItemPayload `json:"orderItems"`
	TotalAmount     json.Number        `json:"totalAmount"`
	Currency        string             `json:"currency"`
	Status          string             `json:"status"`
	PaymentMethod   string             `json:"paymentMethod"`
	PaymentIntentID string             `json:"paymentIntentId,omitempty"`
	PaidAt          string             `json:"paidAt,omitempty"`
	ProcessingAt    string             `json:"processingAt,omitempty"`
	ShippedAt       string             `json:"shippedAt,omitempty"`
	DeliveredAt     string             `json:"deliveredAt,omitempty"`
	CancelledAt     string             `json:"cancelledAt,omitempty"`
	CreatedAt       string             `json:"createdAt"`
	UpdatedAt       string             `json:"updatedAt"`
}

func buildOrderPayload(o domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemPayload{
			Product:  item.ProductID,
			Name:     item.Name,
			Price:    amountJSON(item.UnitPrice),
			Quantity: item.Quantity,
			Image:    item.Image,
		})
	}
	return orderPayload{
		ID:              o.ID,
		User:            o.UserID,
		OrderItems:      items,
		TotalAmount:     amountJSON(o.TotalAmount),
		Currency:        o.Currency,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentIntentID: o.PaymentIntentID,
		PaidAt:          formatTimePtr(o.PaidAt),
		ProcessingAt:    formatTimePtr(o.ProcessingAt),
		ShippedAt:       formatTimePtr(o.ShippedAt),
		DeliveredAt:     formatTimePtr(o.DeliveredAt),
		CancelledAt:     formatTimePtr(o.CancelledAt),
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
	}
}

func buildOrderList(orders []domain.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, o := range orders {
		out = append(out, buildOrderPayload(o))
	}
	return out
}
