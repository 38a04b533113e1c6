// Copyright 2021 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package summarize

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

// UploadCSV uploads CSVDir/<pid>.csv to bucket/<pid>.csv in region, the
// --s3 persistence path from the CLI surface. region resolution
// (--region flag or EC2_PUBLIC_REGION) is the driver's responsibility.
func UploadCSV(pid int, bucket, region string) error {
	path := filepath.Join(CSVDir, strconv.Itoa(pid)+".csv")
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return errors.Wrap(err, "creating AWS session")
	}
	uploader := s3manager.NewUploader(sess)
	key := strconv.Itoa(pid) + ".csv"
	if _, err := uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return errors.Wrapf(err, "uploading %s to s3://%s/%s", path, bucket, key)
	}
	logger.Infof("uploaded %s to s3://%s/%s", path, bucket, key)
	return nil
}
