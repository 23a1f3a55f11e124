package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema mirrors the tables of the hosted persistence service.  Statements
// are idempotent so EnsureSchema can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(32)  NOT NULL DEFAULT 'CUSTOMER',
		metadata      JSON         NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    CHAR(36)     NOT NULL,
		token_hash CHAR(64)     NOT NULL UNIQUE,
		expires_at DATETIME     NOT NULL,
		revoked_at DATETIME     NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_refresh_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		email      VARCHAR(255) NULL,
		full_name  VARCHAR(255) NULL,
		avatar_url VARCHAR(1024) NULL,
		username   VARCHAR(64)  NULL,
		website    VARCHAR(1024) NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id          CHAR(36)     NOT NULL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		slug        VARCHAR(255) NOT NULL UNIQUE,
		description TEXT         NULL,
		image_url   VARCHAR(1024) NULL,
		created_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS brands (
		id          CHAR(36)     NOT NULL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		slug        VARCHAR(255) NOT NULL UNIQUE,
		description TEXT         NULL,
		logo_url    VARCHAR(1024) NULL,
		created_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id               CHAR(36)      NOT NULL PRIMARY KEY,
		name             VARCHAR(255)  NOT NULL,
		slug             VARCHAR(255)  NOT NULL UNIQUE,
		description      TEXT          NULL,
		price            DECIMAL(10,2) NOT NULL,
		compare_at_price DECIMAL(10,2) NULL,
		category_id      CHAR(36)      NULL,
		brand_id         CHAR(36)      NULL,
		stock            INT           NOT NULL DEFAULT 0,
		featured         TINYINT(1)    NOT NULL DEFAULT 0,
		rating           DECIMAL(3,2)  NULL,
		review_count     INT           NOT NULL DEFAULT 0,
		created_at       DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_products_category (category_id),
		INDEX idx_products_brand (brand_id)
	)`,
	`CREATE TABLE IF NOT EXISTS product_images (
		id         CHAR(36)      NOT NULL PRIMARY KEY,
		product_id CHAR(36)      NOT NULL,
		url        VARCHAR(1024) NOT NULL,
		alt        VARCHAR(255)  NULL,
		position   INT           NOT NULL DEFAULT 0,
		created_at DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_images_product (product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id         CHAR(36) NOT NULL PRIMARY KEY,
		user_id    CHAR(36) NOT NULL,
		product_id CHAR(36) NOT NULL,
		quantity   INT      NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_cart_user_product (user_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id               CHAR(36)      NOT NULL PRIMARY KEY,
		user_id          CHAR(36)      NOT NULL,
		status           VARCHAR(32)   NOT NULL,
		total            DECIMAL(12,2) NOT NULL,
		shipping_address JSON          NOT NULL,
		billing_address  JSON          NOT NULL,
		created_at       DATETIME(6)   NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at       DATETIME(6)   NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		INDEX idx_orders_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id         CHAR(36)      NOT NULL PRIMARY KEY,
		order_id   CHAR(36)      NOT NULL,
		product_id CHAR(36)      NOT NULL,
		quantity   INT           NOT NULL,
		price      DECIMAL(10,2) NOT NULL,
		created_at DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_order_items_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id         CHAR(36) NOT NULL PRIMARY KEY,
		product_id CHAR(36) NOT NULL,
		user_id    CHAR(36) NOT NULL,
		rating     TINYINT  NOT NULL,
		comment    TEXT     NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_reviews_product (product_id)
	)`,
}

// EnsureSchema creates any missing table.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
