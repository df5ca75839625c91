package credential

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
)

// testParams はテストを高速にするための軽量なパラメータ。
var testParams = KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

func newTestHasher(t *testing.T, secret string) *Hasher {
	t.Helper()
	h, err := NewHasher(secret, WithKDFParams(testParams))
	if err != nil {
		t.Fatalf("NewHasher()でエラーが発生: %v", err)
	}
	return h
}

// TestNewHasher はNewHasher関数を検証する。
func TestNewHasher(t *testing.T) {
	t.Parallel()

	t.Run("秘密鍵が空の場合はErrMissingSecretを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := NewHasher("")
		if !errors.Is(err, ErrMissingSecret) {
			t.Errorf("err = %v, want %v", err, ErrMissingSecret)
		}
	})

	t.Run("同じ秘密鍵から生成したHasher同士で照合できること", func(t *testing.T) {
		t.Parallel()

		a := newTestHasher(t, "process-secret")
		b := newTestHasher(t, "process-secret")

		stored, err := a.Protect("hunter2")
		if err != nil {
			t.Fatalf("Protect()でエラーが発生: %v", err)
		}
		if !b.Verify("hunter2", stored) {
			t.Error("同じ秘密鍵のHasherで照合に失敗した")
		}
	})

	t.Run("パラメータが異なると照合できないこと", func(t *testing.T) {
		t.Parallel()

		a := newTestHasher(t, "process-secret")
		b, err := NewHasher("process-secret", WithKDFParams(KDFParams{Time: 2, Memory: 8 * 1024, Threads: 1}))
		if err != nil {
			t.Fatalf("NewHasher()でエラーが発生: %v", err)
		}

		stored, err := a.Protect("hunter2")
		if err != nil {
			t.Fatalf("Protect()でエラーが発生: %v", err)
		}
		if b.Verify("hunter2", stored) {
			t.Error("異なるパラメータで照合に成功した")
		}
	})
}

// TestProtectAndVerify はProtectとVerifyの往復を検証する。
func TestProtectAndVerify(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, "process-secret")

	tests := []struct {
		name     string
		password string
	}{
		{name: "英数字のパスワード", password: "correct horse battery staple"},
		{name: "空文字列のパスワード", password: ""},
		{name: "マルチバイト文字を含むパスワード", password: "パスワード🔑"},
		{name: "区切り文字を含むパスワード", password: "a:b:c"},
		{name: "長いパスワード", password: strings.Repeat("x", 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stored, err := h.Protect(tt.password)
			if err != nil {
				t.Fatalf("Protect()でエラーが発生: %v", err)
			}
			if !h.Verify(tt.password, stored) {
				t.Errorf("Verify(%q, %q) = false, want true", tt.password, stored)
			}
			if h.Verify(tt.password+"x", stored) {
				t.Errorf("異なるパスワードで照合に成功した")
			}
		})
	}
}

// TestProtectFormat は保存形式を検証する。
func TestProtectFormat(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, "process-secret")

	t.Run("ソルトは32桁の小文字16進でハッシュは32バイトであること", func(t *testing.T) {
		t.Parallel()

		const password = "hunter2"
		stored, err := h.Protect(password)
		if err != nil {
			t.Fatalf("Protect()でエラーが発生: %v", err)
		}
		saltHex, body, ok := strings.Cut(stored, ":")
		if !ok {
			t.Fatalf("区切り文字がない: %q", stored)
		}
		if len(saltHex) != 32 {
			t.Errorf("len(salt) = %d, want 32", len(saltHex))
		}
		if strings.ToLower(saltHex) != saltHex {
			t.Errorf("ソルトが小文字ではない: %q", saltHex)
		}
		hash, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			t.Fatalf("ハッシュがBase64ではない: %v", err)
		}
		if len(hash) != 32 {
			t.Errorf("len(hash) = %d, want 32", len(hash))
		}
		if strings.Contains(stored, password) || strings.Contains(stored, base64.StdEncoding.EncodeToString([]byte(password))) {
			t.Errorf("保存値にパスワードが含まれている: %q", stored)
		}
	})

	t.Run("同じパスワードでも毎回異なる値になること", func(t *testing.T) {
		t.Parallel()

		seen := make(map[string]struct{})
		for range 20 {
			stored, err := h.Protect("same-password")
			if err != nil {
				t.Fatalf("Protect()でエラーが発生: %v", err)
			}
			if _, dup := seen[stored]; dup {
				t.Fatalf("保存値が重複した: %q", stored)
			}
			seen[stored] = struct{}{}
		}
	})
}

// TestVerifyTampered は保存値のどの1文字を改変しても照合が失敗することを検証する。
func TestVerifyTampered(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, "process-secret")
	const password = "correct horse"

	stored, err := h.Protect(password)
	if err != nil {
		t.Fatalf("Protect()でエラーが発生: %v", err)
	}
	sep := strings.Index(stored, ":")

	for i := range len(stored) {
		if i == sep {
			continue
		}
		// ソルトは小文字16進のまま値だけを変える
		replacement := byte('A')
		switch {
		case i < sep && stored[i] == '0':
			replacement = '1'
		case i < sep:
			replacement = '0'
		case stored[i] == 'A':
			replacement = 'B'
		}
		tampered := stored[:i] + string(replacement) + stored[i+1:]
		if h.Verify(password, tampered) {
			t.Errorf("位置 %d を改変した保存値で照合に成功した: %q", i, tampered)
		}
	}
}

// TestVerifyMalformed は不正な保存値に対してfalseを返すことを検証する。
func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, "process-secret")
	valid, err := h.Protect("hunter2")
	if err != nil {
		t.Fatalf("Protect()でエラーが発生: %v", err)
	}
	saltHex, body, _ := strings.Cut(valid, ":")

	tests := []struct {
		name   string
		stored string
	}{
		{name: "空文字列", stored: ""},
		{name: "区切り文字がない", stored: saltHex + body},
		{name: "ソルトが16進でない", stored: "zz" + saltHex[2:] + ":" + body},
		{name: "ソルトが短い", stored: saltHex[:30] + ":" + body},
		{name: "ソルトが大文字", stored: strings.ToUpper(saltHex) + ":" + body},
		{name: "ハッシュがBase64でない", stored: saltHex + ":" + "!!!!"},
		{name: "ハッシュが空", stored: saltHex + ":"},
		{name: "ハッシュが短い", stored: saltHex + ":" + base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{name: "区切り文字が余分にある", stored: valid + ":extra"},
		{name: "平文のパスワード", stored: "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if h.Verify("hunter2", tt.stored) {
				t.Errorf("Verify(%q) = true, want false", tt.stored)
			}
		})
	}

	t.Run("別の秘密鍵で作った保存値は照合できないこと", func(t *testing.T) {
		t.Parallel()

		other := newTestHasher(t, "another-secret")
		if other.Verify("hunter2", valid) {
			t.Error("別の秘密鍵で照合に成功した")
		}
	})
}

// TestHasherConcurrent は複数goroutineからの同時利用を検証する。
func TestHasherConcurrent(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, "process-secret")

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			password := strings.Repeat("p", i+1)
			stored, err := h.Protect(password)
			if err != nil {
				errs <- err.Error()
				return
			}
			if !h.Verify(password, stored) {
				errs <- "照合に失敗: " + password
			}
		}()
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}
