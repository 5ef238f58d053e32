// Package codec кодирует поля отчета так, как их ожидает коллектор:
// gzip, затем base64, затем экранирование '+' и '/' для form-urlencoded тела.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

var (
	escaper   = strings.NewReplacer("+", "%2B", "/", "%2F")
	unescaper = strings.NewReplacer("%2B", "+", "%2F", "/")
)

// Escape экранирует символы base64, которые ломают form-urlencoded тело
func Escape(s string) string {
	return escaper.Replace(s)
}

// Base64 кодирует строку в base64 без сжатия и экранирует результат
func Base64(s string) string {
	return Escape(base64.StdEncoding.EncodeToString([]byte(s)))
}

// CompressAndEncode сжимает данные gzip и кодирует в экранированный base64
func CompressAndEncode(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("failed to compress data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to flush gzip stream: %w", err)
	}

	return Escape(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

// MustCompressString сжимает строку; запись в bytes.Buffer не возвращает ошибок
func MustCompressString(s string) string {
	encoded, err := CompressAndEncode([]byte(s))
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeBase64 снимает экранирование и декодирует base64
func DecodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(unescaper.Replace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return raw, nil
}

// DecodeAndDecompress выполняет обратное CompressAndEncode преобразование
func DecodeAndDecompress(s string) ([]byte, error) {
	raw, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	return data, nil
}
