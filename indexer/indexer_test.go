package indexer

import "testing"

func TestLayoutOffsetsDisjoint(t *testing.T) {
	l := Layout{NComp: 2, NCol: 3, NPar: 2, NBound: []int{1, 2}}
	if got, want := l.StrideBound(), 3; got != want {
		t.Fatalf("StrideBound = %d, want %d", got, want)
	}
	if got, want := l.StrideParShell(), 5; got != want {
		t.Fatalf("StrideParShell = %d, want %d", got, want)
	}
	if got, want := l.NumDofs(), 2*3+3*2*5+2*3; got != want {
		t.Fatalf("NumDofs = %d, want %d", got, want)
	}
	// bulk region, particle region and flux region must not overlap
	bulkEnd := l.NComp * l.NCol
	if l.OffsetParBlock(0) != bulkEnd {
		t.Fatalf("particle block should start right after bulk region")
	}
	if l.OffsetJf() != bulkEnd+l.NCol*l.StrideParBlock() {
		t.Fatalf("flux region should start right after particle region")
	}
	if l.OffsetBoundComp(0) != 0 || l.OffsetBoundComp(1) != 1 {
		t.Fatalf("bound-state component offsets wrong: %d %d", l.OffsetBoundComp(0), l.OffsetBoundComp(1))
	}
}
