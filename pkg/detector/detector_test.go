package detector

import "testing"

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "sonar"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNew_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DNN.ModelPath = "does/not/exist.caffemodel"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for missing model file")
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"color", "cascade", "dnn", "landmark"} {
		k, err := ParseKind(s)
		if err != nil || string(k) != s {
			t.Errorf("ParseKind(%q) = %q, %v", s, k, err)
		}
	}
	if k, err := ParseKind(""); err != nil || k != KindDNN {
		t.Errorf("ParseKind(\"\") = %q, %v, want dnn", k, err)
	}
	if _, err := ParseKind("yolo"); err == nil {
		t.Error("ParseKind(yolo) = nil error")
	}
}
