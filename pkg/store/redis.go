package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/model"
)

const (
	formKeyPrefix  = "clinicform:form:"
	indexKeyPrefix = "clinicform:forms:"
	unscopedClinic = "_"
)

// RedisStore keeps each form as a JSON string and indexes form ids per
// clinic in a set.
type RedisStore struct {
	client redis.Cmdable
	logger *zap.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger attaches a logger.
func WithRedisLogger(l *zap.Logger) RedisOption {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func formKey(id string) string { return formKeyPrefix + id }

func indexKey(clinicID string) string {
	if clinicID == "" {
		clinicID = unscopedClinic
	}
	return indexKeyPrefix + clinicID
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.FormModel, error) {
	data, err := s.client.Get(ctx, formKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.FormModel{}, ErrNotFound
	}
	if err != nil {
		return model.FormModel{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	form, err := model.Decode(data)
	if err != nil {
		return model.FormModel{}, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return form, nil
}

func (s *RedisStore) Save(ctx context.Context, form model.FormModel) error {
	if strings.TrimSpace(form.ID) == "" {
		return ErrMissingID
	}
	data, err := model.Encode(form)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", form.ID, err)
	}

	previous, err := s.Get(ctx, form.ID)
	moved := err == nil && previous.ClinicID != form.ClinicID
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("could not read previous form revision", zap.String("form", form.ID), zap.Error(err))
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, formKey(form.ID), data, 0)
		pipe.SAdd(ctx, indexKey(form.ClinicID), form.ID)
		if moved {
			pipe.SRem(ctx, indexKey(previous.ClinicID), form.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", form.ID, err)
	}
	s.logger.Debug("form stored", zap.String("form", form.ID), zap.String("clinic", form.ClinicID))
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	form, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, formKey(id))
		pipe.SRem(ctx, indexKey(form.ClinicID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return nil
}

// List loads every indexed form of a clinic. Index entries whose form has
// vanished are skipped.
func (s *RedisStore) List(ctx context.Context, clinicID string) ([]model.FormModel, error) {
	ids, err := s.client.SMembers(ctx, indexKey(clinicID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", clinicID, err)
	}
	out := make([]model.FormModel, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = formKey(id)
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", clinicID, err)
	}
	for i, item := range raw {
		text, ok := item.(string)
		if !ok {
			s.logger.Warn("index references missing form", zap.String("form", ids[i]), zap.String("clinic", clinicID))
			continue
		}
		form, err := model.Decode([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", ids[i], err)
		}
		out = append(out, form)
	}
	sortByID(out)
	return out, nil
}
