// Package keystore 发奖热钱包私钥的加载与加密 (Ethereum Keystore V3)
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var ErrNoKey = errors.New("keystore: neither keystore file nor private key configured")

// Encrypt 使用密码加密私钥; light 为 true 时使用较低的 scrypt 参数 (仅测试/开发)
func Encrypt(key *ecdsa.PrivateKey, password string, light bool) ([]byte, error) {
	n, p := gethkeystore.StandardScryptN, gethkeystore.StandardScryptP
	if light {
		n, p = gethkeystore.LightScryptN, gethkeystore.LightScryptP
	}
	k := &gethkeystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}
	return gethkeystore.EncryptKey(k, password, n, p)
}

// Decrypt 解密 Keystore JSON, 密码错误时返回 gethkeystore.ErrDecrypt
func Decrypt(keyJSON []byte, password string) (*ecdsa.PrivateKey, error) {
	k, err := gethkeystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, err
	}
	return k.PrivateKey, nil
}

// SaveToFile 保存到文件 (只有所有者可读写)
func SaveToFile(path string, keyJSON []byte) error {
	return os.WriteFile(path, keyJSON, 0600)
}

// NewKeyFile 生成新私钥并写入 keystore 文件, 返回地址
func NewKeyFile(path, password string, light bool) (common.Address, error) {
	if _, err := os.Stat(path); err == nil {
		return common.Address{}, fmt.Errorf("keystore file %s already exists", path)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	keyJSON, err := Encrypt(key, password, light)
	if err != nil {
		return common.Address{}, err
	}
	if err := SaveToFile(path, keyJSON); err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// LoadPayoutKey 优先读取 keystore 文件; 文件不存在时退回到 hex 私钥 (仅开发环境配置)
func LoadPayoutKey(path, password, hexKey string) (*ecdsa.PrivateKey, error) {
	if path != "" {
		keyJSON, err := os.ReadFile(path)
		switch {
		case err == nil:
			return Decrypt(keyJSON, password)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read keystore: %w", err)
		}
	}
	if hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"); hexKey != "" {
		return crypto.HexToECDSA(hexKey)
	}
	return nil, ErrNoKey
}
