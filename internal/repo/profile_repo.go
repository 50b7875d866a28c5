package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/store"
)

// ProfileRepo — хранилище vendor-профилей порталов.
//
// Удовлетворяет контракту ProfileSource диспетчера: Resolve подбирает
// профиль по ключу, затем по URL-паттерну, затем generic.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo создаёт ProfileRepo поверх пула соединений.
func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// Resolve возвращает профиль для задачи. Отсутствие подходящего
// профиля — generic, не ошибка.
func (r *ProfileRepo) Resolve(ctx context.Context, key, targetURL string) (*domain.VendorProfile, error) {
	if key != "" {
		p, err := r.Get(ctx, key)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	profiles, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p.URLPattern != "" && strings.Contains(targetURL, p.URLPattern) {
			return p, nil
		}
	}
	return domain.GenericProfile(), nil
}

// Get возвращает профиль по ключу.
func (r *ProfileRepo) Get(ctx context.Context, key string) (*domain.VendorProfile, error) {
	var profileJSON []byte
	err := r.pool.QueryRow(ctx, `SELECT profile FROM vendor_profiles WHERE key = $1`, key).Scan(&profileJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return unmarshalProfile(key, profileJSON)
}

// List возвращает все профили.
func (r *ProfileRepo) List(ctx context.Context) ([]*domain.VendorProfile, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, profile FROM vendor_profiles ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.VendorProfile
	for rows.Next() {
		var key string
		var profileJSON []byte
		if err := rows.Scan(&key, &profileJSON); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p, err := unmarshalProfile(key, profileJSON)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Upsert вставляет или обновляет профиль.
func (r *ProfileRepo) Upsert(ctx context.Context, p *domain.VendorProfile) error {
	if p.Key == "" {
		return fmt.Errorf("%w: profile key is empty", store.ErrInvalidPayload)
	}

	profileJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO vendor_profiles (key, profile)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET profile = EXCLUDED.profile
	`, p.Key, profileJSON)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func unmarshalProfile(key string, data []byte) (*domain.VendorProfile, error) {
	var p domain.VendorProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile %s: %w", key, err)
	}
	p.Key = key
	return &p, nil
}
