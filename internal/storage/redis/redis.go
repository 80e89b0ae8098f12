package redis

import (
	"context"
	"fmt"
	"time"

	"client_portal/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// * SetCodePending сохраняет информацию о выданном коде с TTL
func (r *RedisRepo) SetCodePending(ctx context.Context, userID int64, purpose models.CodePurpose, ttl time.Duration) error {
	const op = "storage.redis.SetCodePending"

	key := pendingKey(userID, purpose)

	data := map[string]interface{}{
		"user_id":    userID,
		"purpose":    string(purpose),
		"created_at": time.Now().Unix(),
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * DeleteCodePending удаляет информацию о pending коде
func (r *RedisRepo) DeleteCodePending(ctx context.Context, userID int64, purpose models.CodePurpose) error {
	const op = "storage.redis.DeleteCodePending"

	err := r.client.Del(ctx, pendingKey(userID, purpose)).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * MarkCodeUsed помечает код как использованный (атомарно через SETNX)
// Возвращает true если код был использован первый раз
// Возвращает false если код уже был использован ранее
func (r *RedisRepo) MarkCodeUsed(ctx context.Context, userID int64, purpose models.CodePurpose, ttl time.Duration) (bool, error) {
	const op = "storage.redis.MarkCodeUsed"

	key := fmt.Sprintf("otp:used:%d:%s", userID, purpose)

	success, err := r.client.SetNX(ctx, key, "used", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return success, nil
}

// * ClearCodeUsed сбрасывает маркер использования при повторной выдаче кода
func (r *RedisRepo) ClearCodeUsed(ctx context.Context, userID int64, purpose models.CodePurpose) error {
	const op = "storage.redis.ClearCodeUsed"

	key := fmt.Sprintf("otp:used:%d:%s", userID, purpose)

	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * Close закрывает соединение с базой данных.
func (r *RedisRepo) Close() {
	r.client.Close()
}

func pendingKey(userID int64, purpose models.CodePurpose) string {
	return fmt.Sprintf("otp:pending:%d:%s", userID, purpose)
}
