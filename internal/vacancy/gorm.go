package vacancy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Company owns vacancies.
type Company struct {
	ID        uint      `gorm:"primaryKey"`
	OwnerID   int64     `gorm:"index;not null"`
	Title     string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"not null"`
	Vacancies []Vacancy
	Members   []CompanyMember
}

// Vacancy is the database row behind a Descriptor.
type Vacancy struct {
	ID           uint   `gorm:"primaryKey"`
	CompanyID    uint   `gorm:"index;not null"`
	Title        string `gorm:"type:varchar(255);not null"`
	Description  string `gorm:"type:text;default:''"`
	Requirements string `gorm:"type:text;default:''"`
	Duties       string `gorm:"type:text;default:''"`
	Conditions   string `gorm:"type:text;default:''"`
	IsActive     bool   `gorm:"default:true"`
}

// CompanyMember grants an HR user access to a company.
type CompanyMember struct {
	CompanyID uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"primaryKey"`
	Role      string `gorm:"type:varchar(50);default:'hr'"`
}

// Descriptor flattens the vacancy sections into a single description.
func (v Vacancy) Descriptor() Descriptor {
	sections := []struct{ name, text string }{
		{"", v.Description},
		{"Requirements", v.Requirements},
		{"Duties", v.Duties},
		{"Conditions", v.Conditions},
	}

	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		text := strings.TrimSpace(s.text)
		if text == "" {
			continue
		}
		if s.name != "" {
			text = s.name + ":\n" + text
		}
		parts = append(parts, text)
	}

	return Descriptor{
		ID:          strconv.FormatUint(uint64(v.ID), 10),
		Title:       v.Title,
		Description: strings.Join(parts, "\n\n"),
	}
}

// GormStore keeps companies and vacancies in PostgreSQL.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Store = (*GormStore)(nil)

// OpenGormStore connects to PostgreSQL and migrates the schema.
func OpenGormStore(dsn string, logger *zap.Logger) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database url is required for the postgres vacancy source")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return NewGormStore(db, logger)
}

// NewGormStore wraps an existing connection and migrates the schema.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Company{}, &Vacancy{}, &CompanyMember{}); err != nil {
		return nil, fmt.Errorf("migrate vacancy schema: %w", err)
	}
	return &GormStore{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseID(id string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return uint(n), nil
}

// Get returns an active vacancy.
func (s *GormStore) Get(ctx context.Context, id string) (Descriptor, error) {
	v, err := s.byID(ctx, id)
	if err != nil {
		return Descriptor{}, err
	}
	if !v.IsActive {
		return Descriptor{}, fmt.Errorf("%w: %s is inactive", ErrNotFound, id)
	}
	return v.Descriptor(), nil
}

func (s *GormStore) byID(ctx context.Context, id string) (Vacancy, error) {
	n, err := parseID(id)
	if err != nil {
		return Vacancy{}, err
	}

	var v Vacancy
	err = s.db.WithContext(ctx).First(&v, n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Vacancy{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Vacancy{}, fmt.Errorf("load vacancy %s: %w", id, err)
	}
	return v, nil
}

func (s *GormStore) ListActive(ctx context.Context) ([]Descriptor, error) {
	var rows []Vacancy
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list vacancies: %w", err)
	}

	out := make([]Descriptor, 0, len(rows))
	for _, v := range rows {
		out = append(out, v.Descriptor())
	}
	return out, nil
}

// CreateCompany registers a company and makes ownerID its owner member.
func (s *GormStore) CreateCompany(ctx context.Context, ownerID int64, title string) (Company, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Company{}, errors.New("company title is required")
	}

	c := Company{OwnerID: ownerID, Title: title}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		return tx.Create(&CompanyMember{CompanyID: c.ID, UserID: ownerID, Role: "owner"}).Error
	})
	if err != nil {
		return Company{}, fmt.Errorf("create company: %w", err)
	}

	s.logger.Info("company created", zap.Uint("company_id", c.ID), zap.Int64("owner_id", ownerID))
	return c, nil
}

// CompaniesFor returns the companies a user owns, with their vacancies.
func (s *GormStore) CompaniesFor(ctx context.Context, ownerID int64) ([]Company, error) {
	var companies []Company
	err := s.db.WithContext(ctx).
		Preload("Vacancies", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("owner_id = ?", ownerID).
		Order("id").
		Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

// Create adds an active vacancy to a company.
func (s *GormStore) Create(ctx context.Context, companyID uint, title, description string) (Descriptor, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Descriptor{}, errors.New("vacancy title is required")
	}

	var company Company
	if err := s.db.WithContext(ctx).First(&company, companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Descriptor{}, fmt.Errorf("company %d not found", companyID)
		}
		return Descriptor{}, fmt.Errorf("load company %d: %w", companyID, err)
	}

	v := Vacancy{CompanyID: companyID, Title: title, Description: strings.TrimSpace(description), IsActive: true}
	if err := s.db.WithContext(ctx).Create(&v).Error; err != nil {
		return Descriptor{}, fmt.Errorf("create vacancy: %w", err)
	}

	s.logger.Info("vacancy created", zap.Uint("vacancy_id", v.ID), zap.Uint("company_id", companyID))
	return v.Descriptor(), nil
}

// UpdateTitle renames a vacancy.
func (s *GormStore) UpdateTitle(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("vacancy title is required")
	}
	return s.update(ctx, id, "title", title)
}

// UpdateDescription replaces the free-form description.
func (s *GormStore) UpdateDescription(ctx context.Context, id, description string) error {
	return s.update(ctx, id, "description", strings.TrimSpace(description))
}

// Deactivate hides a vacancy from candidates. Rows are never deleted so that
// evaluation records keep pointing at an existing vacancy.
func (s *GormStore) Deactivate(ctx context.Context, id string) error {
	return s.update(ctx, id, "is_active", false)
}

func (s *GormStore) update(ctx context.Context, id, column string, value any) error {
	v, err := s.byID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&v).Update(column, value).Error; err != nil {
		return fmt.Errorf("update vacancy %s %s: %w", id, column, err)
	}
	s.logger.Info("vacancy updated", zap.String("vacancy_id", id), zap.String("field", column))
	return nil
}
