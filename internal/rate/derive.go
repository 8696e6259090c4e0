package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
)

// 本地调试客户端：不发网络请求，缺省 key 时使用内置常量。
var localClients = map[string]bool{"mock": true, "flaky": true}

// DeriveKeyFromProviderOptions 从 LLM 客户端标识与其原样 Options JSON 中提取 API Key，
// 并返回按 client+sha256(key) 构造的限流分组键。找不到 key 时返回错误。
// 仅解析常见键名："api_key" 与 "api_key_env"。
// 同一把 key 的不同 provider 条目共享额度（上游按 key 计费与限流）。
func DeriveKeyFromProviderOptions(client string, raw json.RawMessage) (LimitKey, error) {
	// 按通用 JSON 键解析，不依赖 plugins/* 的具体类型
	var obj struct {
		APIKey    string `json:"api_key"`
		APIKeyEnv string `json:"api_key_env"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &obj)
	}
	key := obj.APIKey
	if key == "" && obj.APIKeyEnv != "" {
		key = os.Getenv(obj.APIKeyEnv)
	}
	if key == "" && localClients[client] {
		key = "MOCK_DEBUG_KEY"
	}
	if key == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:8])), nil
}
