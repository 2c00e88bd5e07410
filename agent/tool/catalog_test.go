package tool

import (
	"context"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
)

func TestBuildForRouteAdvisor(t *testing.T) {
	t.Parallel()

	infos, executor := BuildForRoute(contractx.RouteAdvisor, Deps{})
	if len(infos) != 4 {
		t.Fatalf("expected 4 tool infos, got %d", len(infos))
	}
	if infos[0].Name != ToolGetCourses {
		t.Fatalf("unexpected first tool: %s", infos[0].Name)
	}
	if executor == nil {
		t.Fatal("executor must not be nil")
	}
}

func TestBuildForRouteEscalationHasNoTools(t *testing.T) {
	t.Parallel()

	infos, _ := BuildForRoute(contractx.RouteEscalation, Deps{})
	if len(infos) != 0 {
		t.Fatalf("expected no tools, got %d", len(infos))
	}
}

func TestEveryRouteToolIsRegistered(t *testing.T) {
	t.Parallel()

	for route, names := range routeTools {
		for _, name := range names {
			if _, ok := handlers[name]; !ok {
				t.Fatalf("route %s lists %s without a handler", route, name)
			}
			if _, ok := toolInfos[name]; !ok {
				t.Fatalf("route %s lists %s without a tool info", route, name)
			}
		}
	}
}

func TestExecutorRejectsToolOutsideRoute(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(contractx.RouteAdvisor, Deps{})
	out, err := exec(context.Background(), statex.New("s1"), ToolAddOrder, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.Message, "unavailable") {
		t.Fatalf("unexpected message: %q", out.Message)
	}
	if !out.Delta.IsEmpty() {
		t.Fatal("rejected tool must not change state")
	}
}

func TestGetCoursesFallsBackToSemanticSearch(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{semantic: []statex.SeenItem{{CourseID: 7, Name: "IELTS Foundation", Price: 5_000_000}}}
	st := statex.New("s1")
	st.UserInput = "muốn học tiếng anh"

	out, err := getCourses(context.Background(), Deps{Catalog: cat}, st, `{"keywords":"ielts"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cat.semanticQuery != "muốn học tiếng anh. ielts" {
		t.Fatalf("unexpected semantic query: %q", cat.semanticQuery)
	}
	if _, ok := out.Delta.SeenItems[7]; !ok {
		t.Fatalf("expected course 7 in seen items, got %v", out.Delta.SeenItems)
	}
	if !strings.Contains(out.Message, "5,000,000 VNĐ") {
		t.Fatalf("expected formatted price, got %q", out.Message)
	}
}

func TestGetCoursesPropagatesBackendError(t *testing.T) {
	t.Parallel()

	_, err := getCourses(context.Background(), Deps{Catalog: &fakeCatalog{err: errBackend}}, statex.New("s1"), `{"keywords":"x"}`)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFlexIDAcceptsStringsAndNumbers(t *testing.T) {
	t.Parallel()

	var a swapArgs
	if !decodeArgs(`{"order_id":"#12","old_course_id":3,"new_course_id":"4"}`, &a) {
		t.Fatal("expected args to decode")
	}
	if a.OrderID != 12 || a.OldCourseID != 3 || a.NewCourseID != 4 {
		t.Fatalf("unexpected args: %+v", a)
	}
	if decodeArgs(`{"order_id":"abc"}`, &a) {
		t.Fatal("expected non numeric id to fail")
	}
}
