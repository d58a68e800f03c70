package model

import "strings"

// DocumentKind は事業者が提出する書類の種類。ストレージパスの末尾にも使われる。
type DocumentKind string

const (
	DocumentBIRCertificate DocumentKind = "bir_certificate"
	DocumentBusinessPermit DocumentKind = "business_permit"
	DocumentGovernmentID   DocumentKind = "government_id"
)

// RequiredDocuments は事業者登録に必須の書類を提出順に返す。
func RequiredDocuments() []DocumentKind {
	return []DocumentKind{DocumentBIRCertificate, DocumentBusinessPermit, DocumentGovernmentID}
}

// Label は画面表示用の書類名を返す。
func (k DocumentKind) Label() string {
	switch k {
	case DocumentBIRCertificate:
		return "BIR Certificate"
	case DocumentBusinessPermit:
		return "Business Permit"
	case DocumentGovernmentID:
		return "Government ID"
	default:
		return string(k)
	}
}

// StoragePath は "{accountId}/{documentKind}" 形式の保存パスを返す。
func (k DocumentKind) StoragePath(accountID string) string {
	return accountID + "/" + string(k)
}

// DefaultMaxUploadSize は書類1件あたりの最大サイズ（5MB、10進）。
const DefaultMaxUploadSize int64 = 5_000_000

// acceptedContentTypes は受け付ける書類のMIMEタイプ。
var acceptedContentTypes = []string{"image/jpeg", "image/jpg", "image/png", "application/pdf"}

// IsAcceptedContentType はMIMEタイプが受付可能かを判定する。パラメータ部分は無視する。
func IsAcceptedContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, accepted := range acceptedContentTypes {
		if mediaType == accepted {
			return true
		}
	}
	return false
}

// Upload はアップロード待ちの書類ファイルを表す。
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size はファイルサイズ（バイト）を返す。
func (u *Upload) Size() int64 {
	if u == nil {
		return 0
	}
	return int64(len(u.Data))
}

// Empty はファイルが未選択または空であるかを返す。
func (u *Upload) Empty() bool {
	return u == nil || len(u.Data) == 0
}
