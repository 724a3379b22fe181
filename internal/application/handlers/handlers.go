// Package handlers ships the builtin processor implementations. They are
// deliberately self-contained demo processors: real deployments register
// their own handlers against the same registry surface.
package handlers

import (
	"github.com/ahrav/docflow/internal/application/registry"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// Builtin handler keys as referenced by processor catalog entries.
const (
	KeyOCR        = "builtin.ocr"
	KeyClassify   = "builtin.classify"
	KeyExtraction = "builtin.extraction"
	KeyEKYC       = "builtin.ekyc"
	KeySign       = "builtin.sign"
	KeyNotify     = "builtin.notify"
	KeyStore      = "builtin.store"
)

// RegisterAll binds every builtin handler to its default slug and registers
// a builder per handler key so catalog entries can reference them under any
// slug.
func RegisterAll(reg *registry.Registry) {
	reg.Register("ocr", NewOCR())
	reg.Register("classify", NewClassify())
	reg.Register("extraction", NewExtraction())
	reg.Register("ekyc", NewEKYC())
	reg.Register("sign", NewSign())
	reg.Register("notify", NewNotify())
	reg.Register("store", NewStore())

	reg.RegisterBuilder(KeyOCR, func() processor.Handler { return NewOCR() })
	reg.RegisterBuilder(KeyClassify, func() processor.Handler { return NewClassify() })
	reg.RegisterBuilder(KeyExtraction, func() processor.Handler { return NewExtraction() })
	reg.RegisterBuilder(KeyEKYC, func() processor.Handler { return NewEKYC() })
	reg.RegisterBuilder(KeySign, func() processor.Handler { return NewSign() })
	reg.RegisterBuilder(KeyNotify, func() processor.Handler { return NewNotify() })
	reg.RegisterBuilder(KeyStore, func() processor.Handler { return NewStore() })
}
