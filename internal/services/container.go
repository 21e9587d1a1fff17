// internal/services/container.go
package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/models"
)

// Container holds every service the HTTP layer and the scheduler share.
type Container struct {
	Storage      *StorageService
	Notification *NotificationService
	Auth         *AuthService
	OAuth        *OAuthService
	User         *UserService
	Catalog      *CatalogService
	Fulfillment  *FulfillmentService
	Order        *OrderService
	Learning     *LearningService
	Review       *ReviewService
	Notice       *NoticeService
	Vimeo        *VimeoService
	Imweb        *ImwebService
	Admin        *AdminService
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	timeout := time.Duration(cfg.Payment.TimeoutSeconds) * time.Second

	storage, err := NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	notifier := NewNotificationService(cfg)

	providers := map[models.OAuthProvider]clients.OAuthClient{}
	if cfg.OAuth.Kakao.ClientID != "" {
		providers[models.OAuthProviderKakao] = clients.NewKakaoClient(cfg.OAuth.Kakao, timeout)
	}
	if cfg.OAuth.Naver.ClientID != "" {
		providers[models.OAuthProviderNaver] = clients.NewNaverClient(cfg.OAuth.Naver, timeout)
	}

	// A nil interface keeps the webhook path on payload data alone.
	var imwebAPI ImwebAPI
	if imwebClient := clients.NewImwebClient(cfg.Imweb.BaseURL, cfg.Imweb.APIKey, cfg.Imweb.APISecret, timeout); imwebClient.Configured() {
		imwebAPI = imwebClient
	} else {
		logrus.Info("Imweb API credentials not set; webhook payloads are trusted as-is")
	}

	auth := NewAuthService(db, cfg, notifier)
	fulfillment := NewFulfillmentService(db, cfg)
	vimeo := NewVimeoService(db, clients.NewVimeoClient(cfg.Vimeo.OEmbedURL, timeout))

	return &Container{
		Storage:      storage,
		Notification: notifier,
		Auth:         auth,
		OAuth:        NewOAuthService(db, auth, providers),
		User:         NewUserService(db, notifier),
		Catalog:      NewCatalogService(db),
		Fulfillment:  fulfillment,
		Order:        NewOrderService(db, cfg, NewPaymentGateway(cfg), fulfillment, notifier),
		Learning:     NewLearningService(db, cfg, storage),
		Review:       NewReviewService(db, cfg),
		Notice:       NewNoticeService(db),
		Vimeo:        vimeo,
		Imweb:        NewImwebService(db, cfg, imwebAPI, fulfillment),
		Admin:        NewAdminService(db, cfg, storage, vimeo),
	}, nil
}
