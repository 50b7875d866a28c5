package agent

import (
	"testing"

	"github.com/dgarciamx/Tramita/internal/domain"
)

func TestDetectOutcome_Success(t *testing.T) {
	text := "Gracias. Factura enviada correctamente. Folio: ABC123"
	result := DetectOutcome(text, nil)

	if !result.Success || result.Outcome != domain.OutcomeSuccess {
		t.Fatalf("outcome %s", result.Outcome)
	}
	if result.Reference != "ABC123" {
		t.Errorf("reference %q", result.Reference)
	}
}

func TestDetectOutcome_FolioFiscal(t *testing.T) {
	text := "Timbrado exitoso. Folio fiscal: 6f2c3a1e-94ab-4c21-b8d0-1a2b3c4d5e6f"
	result := DetectOutcome(text, nil)

	if result.Outcome != domain.OutcomeSuccess {
		t.Fatalf("outcome %s", result.Outcome)
	}
	if result.Reference != "6f2c3a1e-94ab-4c21-b8d0-1a2b3c4d5e6f" {
		t.Errorf("reference %q", result.Reference)
	}
}

// Маркер ошибки выигрывает, даже если страница содержит и маркер успеха.
func TestDetectOutcome_ErrorMarkerWins(t *testing.T) {
	text := "Factura enviada... Error en validación: RFC inválido"
	result := DetectOutcome(text, nil)

	if result.Success || result.Outcome != domain.OutcomeFailure {
		t.Fatalf("outcome %s", result.Outcome)
	}
	if result.Error == nil || result.Error.Kind != domain.KindValidationError {
		t.Errorf("error detail: %+v", result.Error)
	}
}

// Ни маркера успеха, ни маркера ошибки — AMBIGUOUS, не угаданный успех.
func TestDetectOutcome_Ambiguous(t *testing.T) {
	result := DetectOutcome("Procesando su solicitud...", nil)

	if result.Success {
		t.Error("ambiguous page must not be success")
	}
	if result.Outcome != domain.OutcomeAmbiguous {
		t.Fatalf("outcome %s", result.Outcome)
	}
}

func TestDetectOutcome_CheckmarkGlyph(t *testing.T) {
	result := DetectOutcome("✓ Referencia: FAC-2024-001", nil)

	if result.Outcome != domain.OutcomeSuccess {
		t.Fatalf("outcome %s", result.Outcome)
	}
	if result.Reference != "FAC-2024-001" {
		t.Errorf("reference %q", result.Reference)
	}
}

func TestExtractReference_NotFound(t *testing.T) {
	if ref := ExtractReference("sin datos"); ref != "" {
		t.Errorf("unexpected reference %q", ref)
	}
}
