package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

func notFoundRepoErr() error { return testRepoError{msg: "missing", notFound: true} }

type memoryUserRepo struct {
	mu      sync.Mutex
	users   map[string]domain.User
	cleared int
}

func newMemoryUserRepo(users ...domain.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: map[string]domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memoryUserRepo) duplicates(user domain.User) []string {
	var taken []string
	for _, other := range r.users {
		if other.ID == user.ID {
			continue
		}
		if other.Username == user.Username {
			taken = append(taken, "username")
		}
		if other.Email == user.Email {
			taken = append(taken, "email")
		}
	}
	return taken
}

func (r *memoryUserRepo) Insert(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if taken := r.duplicates(user); len(taken) > 0 {
		return &repositories.DuplicateError{Fields: taken}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memoryUserRepo) FindByID(_ context.Context, id string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return domain.User{}, notFoundRepoErr()
	}
	return user, nil
}

func (r *memoryUserRepo) find(match func(domain.User) bool) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return u, nil
		}
	}
	return domain.User{}, notFoundRepoErr()
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == strings.ToLower(email) })
}

func (r *memoryUserRepo) FindByUsername(_ context.Context, username string) (domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r *memoryUserRepo) FindByResetToken(_ context.Context, hash string) (domain.User, error) {
	return r.find(func(u domain.User) bool { return hash != "" && u.ResetPasswordToken == hash })
}

func (r *memoryUserRepo) FindByVerifyToken(_ context.Context, hash string) (domain.User, error) {
	return r.find(func(u domain.User) bool { return hash != "" && u.VerifyEmailToken == hash })
}

func (r *memoryUserRepo) Update(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domain.User{}, notFoundRepoErr()
	}
	if taken := r.duplicates(user); len(taken) > 0 {
		return domain.User{}, &repositories.DuplicateError{Fields: taken}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return notFoundRepoErr()
	}
	delete(r.users, id)
	return nil
}

func (r *memoryUserRepo) List(context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryUserRepo) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *memoryUserRepo) ClearExpiredTokens(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cleared := 0
	for id, u := range r.users {
		if u.ResetPasswordExpire != nil && u.ResetPasswordExpire.Before(now) {
			u.ResetPasswordToken, u.ResetPasswordExpire = "", nil
			cleared++
		}
		if u.VerifyEmailExpire != nil && u.VerifyEmailExpire.Before(now) {
			u.VerifyEmailToken, u.VerifyEmailExpire = "", nil
			cleared++
		}
		r.users[id] = u
	}
	r.cleared += cleared
	return cleared, nil
}

type memoryProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newMemoryProductRepo(products ...domain.Product) *memoryProductRepo {
	repo := &memoryProductRepo{products: map[string]domain.Product{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memoryProductRepo) Insert(_ context.Context, p domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

func (r *memoryProductRepo) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, notFoundRepoErr()
	}
	return p, nil
}

func (r *memoryProductRepo) Update(_ context.Context, p domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; !ok {
		return domain.Product{}, notFoundRepoErr()
	}
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryProductRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return notFoundRepoErr()
	}
	delete(r.products, id)
	return nil
}

func (r *memoryProductRepo) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return filter.Apply(out), nil
}

func (r *memoryProductRepo) ListByOwner(_ context.Context, userID string) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Product
	for _, p := range r.products {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryProductRepo) UpdateRating(_ context.Context, id string, avg float64, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return notFoundRepoErr()
	}
	p.AvgRating, p.NumOfComments = avg, count
	r.products[id] = p
	return nil
}

type memoryReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]domain.Review
}

func newMemoryReviewRepo(reviews ...domain.Review) *memoryReviewRepo {
	repo := &memoryReviewRepo{reviews: map[string]domain.Review{}}
	for _, r := range reviews {
		repo.reviews[r.ID] = r
	}
	return repo
}

func (r *memoryReviewRepo) Insert(_ context.Context, review domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reviews {
		if existing.UserID == review.UserID && existing.ProductID == review.ProductID {
			return &repositories.DuplicateError{Fields: []string{"product"}}
		}
	}
	r.reviews[review.ID] = review
	return nil
}

func (r *memoryReviewRepo) FindByID(_ context.Context, id string) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.reviews[id]
	if !ok {
		return domain.Review{}, notFoundRepoErr()
	}
	return review, nil
}

func (r *memoryReviewRepo) Update(_ context.Context, review domain.Review) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[review.ID]; !ok {
		return domain.Review{}, notFoundRepoErr()
	}
	r.reviews[review.ID] = review
	return review, nil
}

func (r *memoryReviewRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[id]; !ok {
		return notFoundRepoErr()
	}
	delete(r.reviews, id)
	return nil
}

func (r *memoryReviewRepo) filter(match func(domain.Review) bool) []domain.Review {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Review
	for _, review := range r.reviews {
		if match(review) {
			out = append(out, review)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memoryReviewRepo) List(context.Context) ([]domain.Review, error) {
	return r.filter(func(domain.Review) bool { return true }), nil
}

func (r *memoryReviewRepo) ListByProduct(_ context.Context, productID string) ([]domain.Review, error) {
	return r.filter(func(rv domain.Review) bool { return rv.ProductID == productID }), nil
}

func (r *memoryReviewRepo) ListByUser(_ context.Context, userID string) ([]domain.Review, error) {
	return r.filter(func(rv domain.Review) bool { return rv.UserID == userID }), nil
}

func (r *memoryReviewRepo) DeleteByProduct(_ context.Context, productID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, review := range r.reviews {
		if review.ProductID == productID {
			delete(r.reviews, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeImageStore struct {
	mu        sync.Mutex
	uploads   int
	deleted   []string
	uploadErr error
}

func (s *fakeImageStore) Upload(_ context.Context, folder string, upload domain.ImageUpload) (domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return domain.Image{}, s.uploadErr
	}
	s.uploads++
	id := fmt.Sprintf("%s/img-%d", folder, s.uploads)
	return domain.Image{ID: id, Src: "https://cdn.test/" + id, ResourceType: "image"}, nil
}

func (s *fakeImageStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

type recordingMailer struct {
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, html string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

// plainHasher keeps tests fast; the bcrypt implementation is covered in the auth package.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

func sequenceIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func pngUpload() domain.ImageUpload {
	return domain.ImageUpload{Filename: "a.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}
