package mix

import "testing"

func TestNewPlanGroupCount(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 16} {
		plan := NewPlan(n)
		if len(plan) != 2*n-1 {
			t.Errorf("n=%d: group count = %d, want %d", n, len(plan), 2*n-1)
		}
	}
}

func TestNewPlanEmpty(t *testing.T) {
	if plan := NewPlan(0); plan != nil {
		t.Errorf("NewPlan(0) = %v, want nil", plan)
	}
}

func TestNewPlanMultiplicitiesSumToSquare(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 20} {
		plan := NewPlan(n)
		total := 0
		for _, group := range plan {
			for _, pc := range group {
				total += pc.Mult
			}
		}
		if total != n*n {
			t.Errorf("n=%d: total multiplicity = %d, want %d", n, total, n*n)
		}
	}
}

func TestNewPlanGroupSums(t *testing.T) {
	const n = 9
	plan := NewPlan(n)

	for s, group := range plan {
		// count ordered pairs (i, j) with i+j=s and 0 <= i, j < n
		want := 0
		for i := 0; i < n; i++ {
			if j := s - i; j >= 0 && j < n {
				want++
			}
		}

		got := 0
		for _, pc := range group {
			got += pc.Mult
		}
		if got != want {
			t.Errorf("group %d: multiplicity sum = %d, want %d", s, got, want)
		}
	}
}

func TestNewPlanPairInvariants(t *testing.T) {
	const n = 8
	plan := NewPlan(n)

	for s, group := range plan {
		seen := make(map[[2]int]bool)
		prev := -1
		for _, pc := range group {
			if pc.I+pc.J != s {
				t.Fatalf("group %d holds pair (%d, %d)", s, pc.I, pc.J)
			}
			if pc.I > pc.J {
				t.Fatalf("group %d pair (%d, %d) not ordered", s, pc.I, pc.J)
			}
			if pc.I < 0 || pc.J >= n {
				t.Fatalf("group %d pair (%d, %d) out of range", s, pc.I, pc.J)
			}

			wantMult := 2
			if pc.I == pc.J {
				wantMult = 1
			}
			if pc.Mult != wantMult {
				t.Errorf("group %d pair (%d, %d): mult = %d, want %d", s, pc.I, pc.J, pc.Mult, wantMult)
			}

			key := [2]int{pc.I, pc.J}
			if seen[key] {
				t.Errorf("group %d lists pair (%d, %d) twice", s, pc.I, pc.J)
			}
			seen[key] = true

			if pc.I <= prev {
				t.Errorf("group %d pairs not in ascending order", s)
			}
			prev = pc.I
		}
	}
}
