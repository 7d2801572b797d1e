package database

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id VARCHAR(36) PRIMARY KEY,
    external_id VARCHAR(255) NOT NULL UNIQUE,
    email VARCHAR(255) NOT NULL,
    first_name VARCHAR(255),
    last_name VARCHAR(255),
    plan VARCHAR(16) NOT NULL DEFAULT 'FREE',
    credits INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_transactions (
    id VARCHAR(36) PRIMARY KEY,
    account_id VARCHAR(36) NOT NULL,
    amount INT NOT NULL,
    type VARCHAR(16) NOT NULL,
    description TEXT,
    generation_id VARCHAR(36),
    created_at TIMESTAMP NOT NULL,
    UNIQUE KEY uniq_generation_type (generation_id, type),
    KEY idx_tx_account_created (account_id, created_at),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS generations (
    id VARCHAR(36) PRIMARY KEY,
    account_id VARCHAR(36) NOT NULL,
    prompt TEXT NOT NULL,
    enhanced_prompt TEXT,
    image_url TEXT,
    status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
    credits_used INT NOT NULL,
    width INT NOT NULL DEFAULT 1280,
    height INT NOT NULL DEFAULT 720,
    persona_id VARCHAR(36),
    style_id VARCHAR(36),
    parent_id VARCHAR(36),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    KEY idx_generations_account_created (account_id, created_at),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS personas (
    id VARCHAR(36) PRIMARY KEY,
    account_id VARCHAR(36) NOT NULL,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    image_url TEXT NOT NULL,
    usage_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    KEY idx_personas_account (account_id),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS styles (
    id VARCHAR(36) PRIMARY KEY,
    account_id VARCHAR(36) NOT NULL,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    palette TEXT,
    mood TEXT,
    visual_style TEXT,
    usage_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    KEY idx_styles_account (account_id),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS style_images (
    id VARCHAR(36) PRIMARY KEY,
    style_id VARCHAR(36) NOT NULL,
    image_url TEXT NOT NULL,
    position INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    KEY idx_style_images_style (style_id),
    FOREIGN KEY (style_id) REFERENCES styles(id)
)
`
