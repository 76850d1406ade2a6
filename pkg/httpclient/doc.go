// Package httpclient provides a typed Go client for the upload REST API.
//
// Create a client with:
//
//	client, err := httpclient.New("http://localhost:8080/api/upload")
//	if err != nil {
//	   panic(err)
//	}
//
// Then upload a local file in parts, skipping it when the content already
// exists on the server:
//
//	f, _ := os.Open("video.mp4")
//	info, _ := f.Stat()
//	result, err := client.Upload(ctx, info.Name(), f, info.Size())
package httpclient
