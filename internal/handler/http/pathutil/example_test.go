package pathutil_test

import (
	"fmt"

	"storyline/internal/handler/http/pathutil"
)

func ExampleNormalizePath() {
	fmt.Println(pathutil.NormalizePath("/stories/123"))
	fmt.Println(pathutil.NormalizePath("/stories/456/articles"))
	fmt.Println(pathutil.NormalizePath("/matching/run"))
	fmt.Println(pathutil.NormalizePath("/admin/login.php"))

	// Output:
	// /stories/:id
	// /stories/:id/articles
	// /matching/run
	// unmatched
}

func ExampleParseID() {
	id, err := pathutil.ParseID("42")
	fmt.Println(id, err)

	_, err = pathutil.ParseID("0")
	fmt.Println(err)

	// Output:
	// 42 <nil>
	// invalid id
}
